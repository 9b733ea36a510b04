package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/export"
	"github.com/signalnine/dilemmalab/simulation"
	"github.com/signalnine/dilemmalab/store"
	"github.com/signalnine/dilemmalab/strategy"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve simulation tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := newMCPServer(a)
			a.logger.Info("mcp server starting", "version", Version)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func newMCPServer(a *app) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dilemma",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_simulation",
		Description: "Run a social dilemma simulation from a JSON or YAML configuration and return per-strategy final statistics.",
	}, a.runSimulationTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_config",
		Description: "Check a configuration and list every problem found.",
	}, a.validateConfigTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_strategies",
		Description: "List available strategies, optionally for one family: pairwise, harvest, fund, pool.",
	}, a.listStrategiesTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_results",
		Description: "List simulation results saved in the database, newest first.",
	}, a.listResultsTool)

	return server
}

type runSimulationInput struct {
	Config string `json:"config"           jsonschema:"Simulation configuration as a JSON or YAML document"`
	Rounds int    `json:"rounds,omitempty" jsonschema:"Override the configured number of rounds"`
	Seed   *int64 `json:"seed,omitempty"   jsonschema:"Random seed for a reproducible run"`
	Save   bool   `json:"save,omitempty"   jsonschema:"Save the results to the database"`
	Name   string `json:"name,omitempty"   jsonschema:"Name for the saved results"`
	Full   bool   `json:"full,omitempty"   jsonschema:"Return the full round-by-round results instead of the summary"`
}

type validateConfigInput struct {
	Config string `json:"config" jsonschema:"Simulation configuration as a JSON or YAML document"`
}

type listStrategiesInput struct {
	Family string `json:"family,omitempty" jsonschema:"Strategy family: pairwise, harvest, fund or pool"`
}

type listResultsInput struct {
	GameType string `json:"game_type,omitempty" jsonschema:"Only results of this game type"`
	Search   string `json:"search,omitempty"    jsonschema:"Match name or description"`
	Page     int    `json:"page,omitempty"      jsonschema:"Page number (default 1)"`
	PerPage  int    `json:"per_page,omitempty"  jsonschema:"Results per page (default 10)"`
}

func (a *app) runSimulationTool(ctx context.Context, req *mcp.CallToolRequest, input runSimulationInput) (*mcp.CallToolResult, any, error) {
	cfg, err := config.Parse([]byte(input.Config))
	if err != nil {
		return errorResult(err), nil, nil
	}
	opts := []simulation.Option{
		simulation.WithLogger(a.logger),
		simulation.WithRounds(input.Rounds),
		simulation.WithMaxAgents(a.settings.MaxAgents),
	}
	if input.Seed != nil {
		opts = append(opts, simulation.WithSeed(*input.Seed))
	}
	sim, err := simulation.New(cfg, a.registry, opts...)
	if err != nil {
		return errorResult(err), nil, nil
	}
	if err := a.checkRounds(sim.Rounds()); err != nil {
		return errorResult(err), nil, nil
	}
	res := sim.Run()

	out := map[string]any{"summary": export.Summarize(res)}
	if input.Full {
		out["results"] = res
	}
	if input.Save {
		id, err := a.saveResult(ctx, input.Name, "", cfg, res)
		if err != nil {
			return errorResult(err), nil, nil
		}
		out["result_id"] = id
	}
	return jsonResult(out), nil, nil
}

func (a *app) validateConfigTool(ctx context.Context, req *mcp.CallToolRequest, input validateConfigInput) (*mcp.CallToolResult, any, error) {
	cfg, err := config.Parse([]byte(input.Config))
	if err == nil {
		err = simulation.Validate(cfg, a.registry)
	}
	if err != nil {
		problems := []string{}
		for _, e := range multierr.Errors(err) {
			problems = append(problems, e.Error())
		}
		return jsonResult(map[string]any{"valid": false, "errors": problems}), nil, nil
	}
	return jsonResult(map[string]any{"valid": true}), nil, nil
}

func (a *app) listStrategiesTool(ctx context.Context, req *mcp.CallToolRequest, input listStrategiesInput) (*mcp.CallToolResult, any, error) {
	families := strategy.Families
	if input.Family != "" {
		family := strategy.Family(strategy.Normalize(input.Family))
		if len(a.registry.Specs(family)) == 0 {
			return errorResult(fmt.Errorf("unknown strategy family %q", input.Family)), nil, nil
		}
		families = []strategy.Family{family}
	}
	out := make(map[strategy.Family][]strategy.Spec, len(families))
	for _, f := range families {
		out[f] = a.registry.Specs(f)
	}
	return jsonResult(out), nil, nil
}

func (a *app) listResultsTool(ctx context.Context, req *mcp.CallToolRequest, input listResultsInput) (*mcp.CallToolResult, any, error) {
	st, err := a.openStore()
	if err != nil {
		return errorResult(err), nil, nil
	}
	defer st.Close()

	list, err := st.ListResults(ctx, store.ResultsQuery{
		GameType: input.GameType,
		Search:   input.Search,
		Page:     input.Page,
		PerPage:  input.PerPage,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	// Full result payloads are too large for a listing.
	for i := range list.Results {
		list.Results[i].ResultJSON = ""
		list.Results[i].ConfigSnapshot = ""
	}
	return jsonResult(list), nil, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)}},
		IsError: true,
	}
}
