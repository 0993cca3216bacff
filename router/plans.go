package router

import "github.com/higress-group/newsrag/workflow"

// externalClaritySuffix is appended to external queries of the clarity flow.
const externalClaritySuffix = " 최신 뉴스 정보"

// DateFilteredPlan searches the knowledge base inside the requested range,
// optionally supplements it from the web and synthesizes.
func DateFilteredPlan() workflow.Plan {
	return workflow.Plan{
		Name:  string(RouteDateFiltered),
		Steps: searchSteps(),
	}
}

// DirectPlan is the recency-biased default used on its own and as the
// fallback of every other route.
func DirectPlan() workflow.Plan {
	return workflow.Plan{
		Name:  string(RouteDirect),
		Steps: searchSteps(),
	}
}

func searchSteps() []workflow.Step {
	return []workflow.Step{
		{Type: workflow.StepInternalSearch, Critical: true},
		{Type: workflow.StepExternalSearch},
		{Type: workflow.StepAnswerSynthesis, Critical: true},
	}
}

// ClarityPlan disambiguates an unclear query from the web first, then
// re-queries the knowledge base with the keywords found there.
func ClarityPlan() workflow.Plan {
	return workflow.Plan{
		Name: string(RouteClarity),
		Steps: []workflow.Step{
			{Type: workflow.StepQueryRewrite, Condition: workflow.IfClarityLow},
			{
				Type:     workflow.StepExternalSearch,
				Critical: true,
				Params: map[string]string{
					workflow.ParamForce:       "true",
					workflow.ParamQuerySuffix: externalClaritySuffix,
				},
			},
			{Type: workflow.StepKeywordEnrichment},
			{Type: workflow.StepInternalSearch, Critical: true},
			{Type: workflow.StepAnswerSynthesis, Critical: true},
		},
	}
}

// PlanFor maps a route to its plan. dateMetaResponse has no plan.
func PlanFor(r Route) (workflow.Plan, bool) {
	switch r {
	case RouteDateFiltered:
		return DateFilteredPlan(), true
	case RouteClarity:
		return ClarityPlan(), true
	case RouteDirect:
		return DirectPlan(), true
	default:
		return workflow.Plan{}, false
	}
}
