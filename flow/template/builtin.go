package template

import (
	"fmt"

	"github.com/dagrun/dagrun/flow"
)

// sequenceTemplate chains AGENT_EXECUTE nodes: START, one step per task,
// END. Step outputs land in the shared variables under step<n>_output.
func sequenceTemplate() Template {
	return Template{
		Name:        "sequence",
		Category:    "basic",
		Description: "Run a list of agent tasks one after another.",
		Params: []Param{
			{Name: "id", Description: "Definition id", Default: "sequence"},
			{Name: "name", Description: "Definition name", Default: "Sequence"},
			{Name: "tasks", Description: "Ordered task descriptions", Required: true},
		},
		Build: func(params map[string]any) (*flow.Definition, error) {
			tasks, err := stringSlice(params["tasks"])
			if err != nil || len(tasks) == 0 {
				return nil, &flow.Error{
					Kind:    flow.ErrMissingParameter,
					Message: "template \"sequence\": tasks must be a non-empty list of strings",
				}
			}

			b := flow.NewBuilder(asString(params["id"]), asString(params["name"])).
				Node("start", flow.KindStart, nil).
				Node("end", flow.KindEnd, nil)

			prev := "start"
			for i, task := range tasks {
				id := fmt.Sprintf("step%d", i+1)
				b.Node(id, flow.KindAgentExecute, map[string]any{"task": task}).
					Edge(prev, id)
				prev = id
			}
			b.Edge(prev, "end")
			return b.Build()
		},
	}
}

// fanOutCollectTemplate fans every task out in parallel and joins the
// results: START, PARALLEL, one worker per task, JOIN, END. Each worker
// writes its own variable, so branches never contend.
func fanOutCollectTemplate() Template {
	return Template{
		Name:        "fan-out-collect",
		Category:    "parallel",
		Description: "Run agent tasks concurrently and join the results.",
		Params: []Param{
			{Name: "id", Description: "Definition id", Default: "fan-out-collect"},
			{Name: "name", Description: "Definition name", Default: "Fan Out and Collect"},
			{Name: "tasks", Description: "Task descriptions, one branch each", Required: true},
			{Name: "tolerate_partial", Description: "Join succeeds if any branch does", Default: false},
		},
		Build: func(params map[string]any) (*flow.Definition, error) {
			tasks, err := stringSlice(params["tasks"])
			if err != nil || len(tasks) == 0 {
				return nil, &flow.Error{
					Kind:    flow.ErrMissingParameter,
					Message: "template \"fan-out-collect\": tasks must be a non-empty list of strings",
				}
			}

			b := flow.NewBuilder(asString(params["id"]), asString(params["name"])).
				Node("start", flow.KindStart, nil).
				Node("fan_out", flow.KindParallel, map[string]any{"join_group": "collect"}).
				Node("collect", flow.KindJoin, map[string]any{
					"join_group":       "collect",
					"tolerate_partial": params["tolerate_partial"],
				}).
				Node("end", flow.KindEnd, nil).
				Edge("start", "fan_out").
				Edge("collect", "end")

			for i, task := range tasks {
				id := fmt.Sprintf("worker%d", i+1)
				b.Node(id, flow.KindAgentExecute, map[string]any{
					"task":       task,
					"output_key": id + "_result",
				}).
					Edge("fan_out", id).
					Edge(id, "collect")
			}
			return b.Build()
		},
	}
}

// approvalGateTemplate pauses between producing work and publishing it:
// START, AGENT_EXECUTE, HUMAN_APPROVAL, AGENT_EXECUTE, END. Rejecting the
// approval fails the run before the publish step executes.
func approvalGateTemplate() Template {
	return Template{
		Name:        "approval-gate",
		Category:    "human",
		Description: "Produce work, wait for a human decision, then publish.",
		Params: []Param{
			{Name: "id", Description: "Definition id", Default: "approval-gate"},
			{Name: "name", Description: "Definition name", Default: "Approval Gate"},
			{Name: "task", Description: "Work to produce for review", Required: true},
			{Name: "publish_task", Description: "Work to perform after approval", Default: "publish the approved result"},
		},
		Build: func(params map[string]any) (*flow.Definition, error) {
			return flow.NewBuilder(asString(params["id"]), asString(params["name"])).
				Node("start", flow.KindStart, nil).
				Node("produce", flow.KindAgentExecute, map[string]any{
					"task":       params["task"],
					"output_key": "draft",
				}).
				Node("review", flow.KindHumanApproval, nil).
				Node("publish", flow.KindAgentExecute, map[string]any{"task": params["publish_task"]}).
				Node("end", flow.KindEnd, nil).
				Edge("start", "produce").
				Edge("produce", "review").
				Edge("review", "publish").
				Edge("publish", "end").
				Build()
		},
	}
}

// retryPollTemplate polls with a delay until a condition over the shared
// variables stops holding: START, LOOP, poll AGENT_EXECUTE, DELAY,
// back-edge to the LOOP, END on exit. The poll's output merges under
// "poll" so the while expression can inspect it.
func retryPollTemplate() Template {
	return Template{
		Name:        "retry-poll",
		Category:    "resilience",
		Description: "Poll a task on an interval until a condition clears.",
		Params: []Param{
			{Name: "id", Description: "Definition id", Default: "retry-poll"},
			{Name: "name", Description: "Definition name", Default: "Retry Poll"},
			{Name: "task", Description: "Polling task to execute each iteration", Required: true},
			{Name: "while", Description: "Keep polling while this expression holds", Required: true},
			{Name: "interval", Description: "Delay between polls", Default: "5s"},
			{Name: "max_polls", Description: "Iteration bound before the run fails", Default: 10},
		},
		Build: func(params map[string]any) (*flow.Definition, error) {
			return flow.NewBuilder(asString(params["id"]), asString(params["name"])).
				Node("start", flow.KindStart, nil).
				Node("again", flow.KindLoop, map[string]any{
					"body":           "poll",
					"condition":      params["while"],
					"max_iterations": params["max_polls"],
				}).
				Node("poll", flow.KindAgentExecute, map[string]any{
					"task":       params["task"],
					"output_key": "poll",
				}).
				Node("wait", flow.KindDelay, map[string]any{"duration": params["interval"]}).
				Node("end", flow.KindEnd, nil).
				Edge("start", "again").
				Edge("again", "poll").
				Edge("poll", "wait").
				Edge("wait", "again").
				Edge("again", "end").
				Build()
		},
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// stringSlice accepts []string directly or []any of strings, which is what
// JSON and YAML decoding produce.
func stringSlice(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}
