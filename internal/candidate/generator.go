// Package candidate implements the candidate generator: fans rewrite
// requests out to LLM workers under one of three modes, retries failed
// candidates with accumulated feedback, and returns provenance-carrying
// Candidate values for the driver to validate and benchmark. Worker fan-out uses
// golang.org/x/sync/errgroup, the same pattern the pack's campaign
// intelligence gatherer uses for concurrent sub-task collection.
package candidate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JKR8/querytorque-v8-sub011/internal/llm"
	"github.com/JKR8/querytorque-v8-sub011/internal/prompt"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// Mode selects the driver's fan-out/retry/termination policy.
type Mode string

const (
	ModeRetry        Mode = "retry"
	ModeParallel     Mode = "parallel"
	ModeEvolutionary Mode = "evolutionary"
)

const (
	defaultParallelWorkers = 5
	defaultWorkerTimeout   = 30 * time.Second
)

// ValidateFunc lets the generator trigger retry-with-feedback without
// importing the validator package directly; the driver wires in the real
// internal/validator.Validate, tests wire in a stub.
type ValidateFunc func(ctx context.Context, rewrittenSQL string) (*types.ValidationResult, error)

// Request bundles everything a generation run needs.
type Request struct {
	Query         string
	Features      types.FeatureVector
	Gaps          []types.TriggeredGap
	Examples      []types.ScoredExample // pre-ranked, highest score first
	ProfileMD     string
	Mode          Mode
	Workers       int           // parallel mode worker count; 0 -> default 5
	RetryBudget   int           // attempts per worker, beyond the first
	Rounds        int           // evolutionary mode round count
	WorkerTimeout time.Duration // 0 -> defaultWorkerTimeout
	Client        llm.Client
	Validate      ValidateFunc // optional; nil disables retry-with-feedback
}

// Generate runs req.Mode's fan-out/retry policy and returns its
// Candidates: one per worker in parallel mode, one per round run in
// evolutionary mode, and a single Candidate holding the last attempt in
// retry mode.
func Generate(ctx context.Context, req Request) ([]types.Candidate, error) {
	switch req.Mode {
	case ModeRetry:
		return generateRetry(ctx, req)
	case ModeParallel, "":
		return generateParallel(ctx, req)
	case ModeEvolutionary:
		return generateEvolutionary(ctx, req)
	default:
		return nil, fmt.Errorf("candidate.Generate: unknown mode %q", req.Mode)
	}
}

// shardExamples splits examples into k-1 disjoint shards for workers
// 1..k-1 and leaves the last worker with none ("explore" mode) — e.g.
// 12 examples split into four shards of three for a 5-worker fan-out.
func shardExamples(examples []types.ScoredExample, k int) [][]types.ScoredExample {
	shards := make([][]types.ScoredExample, k)
	if k <= 1 {
		return shards
	}
	shardable := k - 1
	per := len(examples) / shardable
	if per == 0 {
		per = 1
	}
	idx := 0
	for i := 0; i < shardable && idx < len(examples); i++ {
		end := idx + per
		if i == shardable-1 || end > len(examples) {
			end = len(examples)
		}
		shards[i] = examples[idx:end]
		idx = end
	}
	// worker k-1 (0-indexed) stays nil: explore mode.
	return shards
}

func workerTimeout(req Request) time.Duration {
	if req.WorkerTimeout > 0 {
		return req.WorkerTimeout
	}
	return defaultWorkerTimeout
}

// runWorker assembles a prompt, asks the LLM, parses the response, and
// (if Validate is wired) retries with accumulated failure feedback up to
// req.RetryBudget additional attempts.
func runWorker(ctx context.Context, req Request, workerID string, examples []types.ScoredExample, exploreMode bool) types.Candidate {
	c := types.Candidate{WorkerID: workerID}
	for _, ex := range examples {
		c.Examples = append(c.Examples, ex.Example.ID)
	}

	var feedback []string
	attempts := req.RetryBudget + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			c.Cancelled = true
			return c
		}

		promptText, err := prompt.Assemble(prompt.Request{
			Query:     req.Query,
			Features:  req.Features,
			Gaps:      req.Gaps,
			Examples:  examples,
			ProfileMD: req.ProfileMD,
			Constraints: prompt.Constraints{
				ExploreMode: exploreMode,
			},
		})
		if err != nil {
			c.Error = err
			return c
		}
		if len(feedback) > 0 {
			promptText += prompt.RetryFeedbackSection(feedback)
		}
		c.Prompt = promptText

		workerCtx, cancel := context.WithTimeout(ctx, workerTimeout(req))
		resp, err := req.Client.Ask(workerCtx, systemPrompt, promptText, llm.Options{})
		cancel()
		if err != nil {
			c.Error = err
			if workerCtx.Err() != nil && ctx.Err() == nil {
				// worker-local timeout, not an outer cancellation: treat as
				// a failed attempt eligible for retry.
				feedback = append(feedback, fmt.Sprintf("attempt %d timed out", attempt+1))
				continue
			}
			return c
		}
		c.RawResponse = resp.Text

		parsed, err := ParseResponse(resp.Text)
		if err != nil {
			c.Error = err
			feedback = append(feedback, fmt.Sprintf("attempt %d: %v", attempt+1, err))
			continue
		}
		sql, ok := PrimarySQL(parsed)
		if !ok {
			feedback = append(feedback, fmt.Sprintf("attempt %d: empty rewrite set", attempt+1))
			continue
		}
		c.RewrittenSQL = sql
		c.Error = nil

		if req.Validate == nil {
			return c
		}
		result, verr := req.Validate(ctx, sql)
		if verr != nil {
			c.Error = verr
			feedback = append(feedback, fmt.Sprintf("attempt %d: validation error: %v", attempt+1, verr))
			continue
		}
		c.Validation = result
		if result.Status == types.ValidationPass {
			return c
		}
		feedback = append(feedback, fmt.Sprintf("attempt %d: %s (%s)", attempt+1, result.Status, result.Error))
	}
	return c
}

const systemPrompt = "You optimize SQL queries for faster execution without changing their results."

func generateParallel(ctx context.Context, req Request) ([]types.Candidate, error) {
	k := req.Workers
	if k <= 0 {
		k = defaultParallelWorkers
	}
	shards := shardExamples(req.Examples, k)

	candidates := make([]types.Candidate, k)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			exploreMode := i == k-1
			candidates[i] = runWorker(gctx, req, fmt.Sprintf("worker-%d", i), shards[i], exploreMode)
			return nil
		})
	}
	_ = g.Wait() // workers never return an error; failures live on the Candidate
	return candidates, nil
}

func generateRetry(ctx context.Context, req Request) ([]types.Candidate, error) {
	c := runWorker(ctx, req, "worker-0", req.Examples, false)
	return []types.Candidate{c}, nil
}

func generateEvolutionary(ctx context.Context, req Request) ([]types.Candidate, error) {
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	var results []types.Candidate
	currentQuery := req.Query
	for round := 0; round < rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		roundReq := req
		roundReq.Query = currentQuery
		c := runWorker(ctx, roundReq, fmt.Sprintf("round-%d", round), req.Examples, false)
		results = append(results, c)
		if c.Error != nil || c.RewrittenSQL == "" {
			break
		}
		// stacked: best rewrite of round N becomes round N+1's input.
		currentQuery = c.RewrittenSQL
	}
	return results, nil
}
