package routes

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dscengine/services/indexer"
)

// EventLog is the indexed event history.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]indexer.Record, error)
	ByAccount(ctx context.Context, account common.Address, limit int) ([]indexer.Record, error)
}

type eventView struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Fingerprint string            `json:"fingerprint"`
	Account     string            `json:"account,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Time        time.Time         `json:"time"`
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, invalid(fmt.Errorf("limit must be a non-negative integer")))
			return
		}
		limit = parsed
	}
	var (
		records []indexer.Record
		err     error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("account")); raw != "" {
		account, perr := parseAddress("account", raw)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		records, err = h.events.ByAccount(r.Context(), account, limit)
	} else {
		records, err = h.events.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, record := range records {
		attrs, err := record.DecodeAttributes()
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, eventView{
			ID:          record.ID.String(),
			Type:        record.Type,
			Fingerprint: record.Fingerprint,
			Account:     record.Account,
			Attributes:  attrs,
			Time:        record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
