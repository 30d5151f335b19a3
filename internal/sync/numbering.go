package sync

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
)

const receiptDateLayout = "2006-01-02"

// NumberResolver mints the next human-readable receipt number for a date.
// Numbers have the form NN/DD/MM/YYYY, unique per user per day.
//
// The remote write and the local enqueue are never one transaction, so a
// strict counter cannot be guaranteed without a server-side sequence. The
// resolver takes the maximum sequence across remote, cached and pending
// data and returns max+1; the sync engine independently re-checks for
// collisions at drain time and calls back in here to regenerate.
type NumberResolver struct {
	remote    remote.Store
	store     Store
	reachable func() bool
	logger    *log.Logger
}

// NewNumberResolver creates a resolver. reachable may be nil, in which
// case the remote store is always consulted. If logger is nil the standard
// logger is used.
func NewNumberResolver(remoteStore remote.Store, store Store, reachable func() bool, logger *log.Logger) *NumberResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &NumberResolver{
		remote:    remoteStore,
		store:     store,
		reachable: reachable,
		logger:    logger,
	}
}

// NextReceiptNumber returns the next unused number for the given date
// (layout 2006-01-02). Remote lookup failures degrade silently to cached
// and pending data; a malformed date falls back to 01/<today>.
func (r *NumberResolver) NextReceiptNumber(ctx context.Context, userID, date string) string {
	day, err := time.Parse(receiptDateLayout, date)
	if err != nil {
		r.logger.Printf("⚠️ Malformed receipt date %q, falling back to today: %v", date, err)
		return fmt.Sprintf("01/%s", dateSuffix(time.Now()))
	}
	suffix := dateSuffix(day)

	maxSeq := 0

	// Remote records, skipped entirely while offline
	if r.reachable == nil || r.reachable() {
		filters := []remote.Filter{
			{Field: "userId", Value: userID},
			{Field: "date", Value: date},
		}
		records, err := r.remote.Query(ctx, models.CollectionReceipts, filters, nil)
		if err != nil {
			r.logger.Printf("⚠️ Remote receipt lookup failed, using local data only: %v", err)
		} else {
			maxSeq = maxSequence(records, suffix, maxSeq)
		}
	}

	// Cached replica
	cached, err := r.store.GetCached(userID, models.CollectionReceipts)
	if err != nil {
		r.logger.Printf("⚠️ Cached receipt lookup failed: %v", err)
	} else {
		maxSeq = maxSequence(cached, suffix, maxSeq)
	}

	// Pending queue: receipts created offline but not yet drained
	pending, err := r.store.ListPending(userID)
	if err != nil {
		r.logger.Printf("⚠️ Pending receipt lookup failed: %v", err)
	} else {
		for i := range pending {
			if pending[i].Kind != models.OpCreateReceipt {
				continue
			}
			payload, err := pending[i].PayloadMap()
			if err != nil {
				continue
			}
			if seq, ok := sequenceOf(stringField(payload, "number"), suffix); ok && seq > maxSeq {
				maxSeq = seq
			}
		}
	}

	return fmt.Sprintf("%02d/%s", maxSeq+1, suffix)
}

// dateSuffix formats the DD/MM/YYYY portion of a receipt number
func dateSuffix(day time.Time) string {
	return fmt.Sprintf("%02d/%02d/%04d", day.Day(), int(day.Month()), day.Year())
}

// maxSequence folds the records' sequence numbers for the given day into max
func maxSequence(records []remote.Record, suffix string, max int) int {
	for _, rec := range records {
		if seq, ok := sequenceOf(stringField(rec, "number"), suffix); ok && seq > max {
			max = seq
		}
	}
	return max
}

// sequenceOf extracts NN from a number of the form NN/DD/MM/YYYY when its
// date part matches suffix.
func sequenceOf(number, suffix string) (int, bool) {
	rest, found := strings.CutSuffix(number, "/"+suffix)
	if !found || rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func stringField(rec remote.Record, field string) string {
	value, _ := rec[field].(string)
	return value
}
