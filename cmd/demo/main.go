package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/router"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/table"
)

func main() {
	fmt.Println("=== tabula core protocol demo ===")
	fmt.Println()

	// 1. Build a table the way a spreadsheet selection arrives
	tbl, err := table.FromMatrix([][]any{
		{"region", "month", "sales"},
		{"north", "2024-01", 120},
		{"south", "2024-01", 95},
		{"north", "2024-02", 140},
		{"south", "2024-02", 101},
	})
	if err != nil {
		fmt.Printf("Table FAILED: %v\n", err)
		return
	}
	fmt.Printf("[1] Table: %s\n%s\n", tbl.Shape(), tbl.Markdown(10))

	// 2. Validate a request
	req := &api.AnalyzeRequest{Question: "Plot total sales per region", Table: tbl}
	if err := api.ValidateAnalyzeRequest(req, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("Validation FAILED: %v\n", err)
		return
	}
	fmt.Println("[2] Request validated successfully")

	data, _ := json.MarshalIndent(req, "", "  ")
	fmt.Printf("\n[3] Request JSON:\n%s\n", data)

	// 3. Keyword routing (the fallback when no model is configured)
	fmt.Println("\n[4] Keyword routing:")
	r := router.New(router.Config{})
	for _, q := range []string{
		"Plot total sales per region",
		"Is there a correlation between month and sales?",
		"Which region sold the most?",
	} {
		intent := r.Route(context.Background(), q, tbl)
		fmt.Printf("    %-50q -> %s (%s, %.1f)\n", q, intent.Tool, intent.Source, intent.Confidence)
	}

	// 4. Parse a model envelope
	reply := envelope.Format(&envelope.Envelope{
		Thought: envelope.Thought{Title: "Totals", Text: "Sum sales per region."},
		Action:  envelope.ActionGenerateCode,
		Code: `const totals = {};
for (const r of df) totals[r.region] = (totals[r.region] || 0) + r.sales;
return totals;`,
		Continue: true,
	})
	fmt.Printf("\n[5] Model reply:\n%s\n", reply)

	env, err := envelope.Parse(reply)
	if err != nil {
		fmt.Printf("Parse FAILED: %v\n", err)
		return
	}
	fmt.Printf("\n[6] Parsed envelope: action=%s continue=%v thought=%q\n",
		env.Action, env.Continue, env.Thought.String())

	// 5. Run the code in the embedded sandbox
	exec := sandbox.NewLocal(sandbox.LocalConfig{ExecTimeout: 5 * time.Second})
	defer exec.Close()

	res, err := exec.Execute(context.Background(), env.Code, tbl)
	if err != nil {
		fmt.Printf("Execute FAILED: %v\n", err)
		return
	}
	fmt.Printf("\n[7] Execution: success=%v duration=%s\n    value: %s\n",
		res.Success, res.Duration, res.ValueString())

	// 6. Validation error examples
	fmt.Println("\n[8] Validation error examples:")
	if err := api.ValidateAnalyzeRequest(&api.AnalyzeRequest{}, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("    Missing question: %v\n", err)
	}
	ragged := &table.Table{Columns: []string{"a", "b"}, Rows: [][]any{{1}}}
	if err := api.ValidateAnalyzeRequest(&api.AnalyzeRequest{Question: "q", Table: ragged}, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("    Ragged table:     %v\n", err)
	}

	// 7. Streaming events
	fmt.Println("\n[9] Streaming event sample:")
	event := api.StreamEvent{
		Type:           api.StreamEventType(api.ProgressCodeEnd),
		SequenceNumber: 4,
		Progress: &api.ProgressEvent{
			Type:    api.ProgressCodeEnd,
			Round:   1,
			Content: res.Output(),
		},
	}
	eventJSON, _ := json.MarshalIndent(event, "", "  ")
	fmt.Printf("%s\n", eventJSON)

	fmt.Println("\n=== demo complete ===")
}
