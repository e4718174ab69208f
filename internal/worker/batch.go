package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// Checker fact-checks a single claim
type Checker interface {
	FactCheck(ctx context.Context, claim, speaker, source string) (*model.FactCheckResult, error)
}

// ClaimRequest is one line of a claims file
type ClaimRequest struct {
	Claim   string
	Speaker string
}

// CheckJob represents a claim verification job
type CheckJob struct {
	Request ClaimRequest
	Source  string
	Checker Checker
}

// Execute executes the check job
func (j *CheckJob) Execute(ctx context.Context) Result {
	result, err := j.Checker.FactCheck(ctx, j.Request.Claim, j.Request.Speaker, j.Source)
	return &CheckResult{Request: j.Request, Result: result, Error: err}
}

// CheckResult represents the result of a check job
type CheckResult struct {
	Request ClaimRequest
	Result  *model.FactCheckResult
	Error   error
}

// GetError returns the error from the check result
func (r *CheckResult) GetError() error {
	return r.Error
}

// BatchProcessor fact-checks multiple claims concurrently
type BatchProcessor struct {
	checker     Checker
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(checker Checker, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		checker:     checker,
		concurrency: concurrency,
	}
}

// ProcessClaims checks all claims with the given source selector. Results
// are returned in input order.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []ClaimRequest, source string) []*CheckResult {
	if len(claims) == 0 {
		return []*CheckResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	// Submit from a goroutine so a full queue cannot stall result draining
	go func() {
		for _, claim := range claims {
			job := &CheckJob{
				Request: claim,
				Source:  source,
				Checker: b.checker,
			}
			if err := pool.Submit(job); err != nil {
				break
			}
		}
		pool.Drain()
	}()

	byClaim := make(map[ClaimRequest][]*CheckResult)
	for result := range pool.Results() {
		cr, ok := result.(*CheckResult)
		if !ok {
			continue
		}
		byClaim[cr.Request] = append(byClaim[cr.Request], cr)
	}

	ordered := make([]*CheckResult, 0, len(claims))
	for _, claim := range claims {
		pending := byClaim[claim]
		if len(pending) == 0 {
			ordered = append(ordered, &CheckResult{Request: claim, Error: fmt.Errorf("not processed: %w", ctx.Err())})
			continue
		}
		ordered = append(ordered, pending[0])
		byClaim[claim] = pending[1:]
	}
	return ordered
}

// ProcessFile reads claims from a file and checks them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath, source string) ([]*CheckResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims, source), nil
}

// ReadClaimsFromFile reads claims from a file, one per line. A line may
// name its speaker before a tab: "Jane Doe<TAB>I cut taxes".
func ReadClaimsFromFile(filePath string) ([]ClaimRequest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []ClaimRequest
	seen := make(map[ClaimRequest]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		req := ClaimRequest{Claim: line}
		if speaker, claim, ok := strings.Cut(line, "\t"); ok {
			req = ClaimRequest{Claim: strings.TrimSpace(claim), Speaker: strings.TrimSpace(speaker)}
		}
		if req.Claim == "" || seen[req] {
			continue
		}
		seen[req] = true
		claims = append(claims, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
