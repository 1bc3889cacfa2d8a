// Package validator implements semantic validation: checks that a candidate rewrite is
// semantically equivalent to the original query by executing both
// against a sample capability handle and comparing row counts and an
// order-insensitive checksum of the result sets.
package validator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/JKR8/querytorque-v8-sub011/internal/dbcap"
	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// DefaultTimeout bounds each sample-store validation execution.
const DefaultTimeout = 10 * time.Second

// Validate runs the four-stage pipeline: parse, execute
// both queries, compare row counts, then compare order-insensitive
// checksums.
func Validate(ctx context.Context, handle dbcap.Handle, original, rewrite string, timeout time.Duration) types.ValidationResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stmt, err := sqlparser.Parse(rewrite)
	if err != nil {
		return types.ValidationResult{Status: types.ValidationParseFail, Error: err.Error()}
	}

	origResult, err := handle.Execute(ctx, original, timeout)
	if err != nil {
		return types.ValidationResult{Status: types.ValidationExecFail, Error: fmt.Sprintf("original: %v", err)}
	}
	rewriteResult, err := handle.Execute(ctx, rewrite, timeout)
	if err != nil {
		return types.ValidationResult{Status: types.ValidationExecFail, Error: fmt.Sprintf("rewrite: %v", err)}
	}

	result := types.ValidationResult{}
	if origCost, cerr := handle.Cost(ctx, original); cerr == nil {
		result.OriginalCost = origCost
	}
	if optCost, cerr := handle.Cost(ctx, rewrite); cerr == nil {
		result.OptimizedCost = optCost
	}

	if origResult.RowCount != rewriteResult.RowCount {
		result.Status = types.ValidationRowCountMismatch
		result.Error = fmt.Sprintf("row counts differ: original=%d rewrite=%d", origResult.RowCount, rewriteResult.RowCount)
		return result
	}
	result.RowsMatch = true

	if hasLimitWithoutOrderBy(stmt) {
		// "Ordering policy": LIMIT without ORDER BY is an
		// accepted weakness — only row-count/multiset cardinality is
		// checked, not exact row content.
		result.ValuesMatch = true
		result.Status = types.ValidationPass
		return result
	}

	origChecksum := checksum(origResult.Rows)
	rewriteChecksum := checksum(rewriteResult.Rows)
	if origChecksum != rewriteChecksum {
		result.Status = types.ValidationChecksumMismatch
		result.Error = "result set checksums differ"
		return result
	}

	result.ValuesMatch = true
	result.Status = types.ValidationPass
	return result
}

// hasLimitWithoutOrderBy inspects the rewrite's top-level SELECT, per
// ordering policy (only the no-ORDER-BY/has-LIMIT case
// needs special handling; ORDER-BY-without-LIMIT already compares fine
// under an order-insensitive checksum).
func hasLimitWithoutOrderBy(stmt sqlparser.Statement) bool {
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return false
	}
	return sel.Limit != nil && len(sel.OrderBy) == 0
}

// checksum hashes the sorted, stringified row tuples so row order never
// affects the result.
func checksum(rows []dbcap.Row) string {
	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, 0, len(row))
		for _, v := range row {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
		tuples = append(tuples, strings.Join(parts, "\x1f"))
	}
	sort.Strings(tuples)

	h := sha256.New()
	for _, t := range tuples {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(tuples)))
	h.Write(countBuf[:])

	return fmt.Sprintf("%x", h.Sum(nil))
}
