package provider

import (
	"context"
	"errors"
	"strings"
)

// supersetMultiplier sizes the recency-ordered superset fetched when the
// provider rejects the sender filter and matching moves client-side.
const supersetMultiplier = 5

func isQueryRejected(err error) bool {
	return errors.Is(err, ErrQueryRejected)
}

// senderLookup resolves a message id to its From header. Adapters supply
// a metadata-only fetch so the fallback stays cheap.
type senderLookup func(ctx context.Context, id string) (string, error)

// filterRefsBySender keeps only refs whose sender matches one of the
// query's sender addresses, stopping once MaxResults matches are found.
// Lookup failures skip the message rather than failing the search.
func filterRefsBySender(ctx context.Context, refs []MessageRef, q SearchQuery, lookup senderLookup) ([]MessageRef, error) {
	matched := make([]MessageRef, 0, q.MaxResults)

	for _, ref := range refs {
		if len(matched) >= q.MaxResults {
			break
		}

		from, err := lookup(ctx, ref.ID)
		if err != nil {
			continue
		}
		if senderMatches(from, q.Senders) {
			matched = append(matched, ref)
		}
	}

	return matched, nil
}

// senderMatches reports whether the From header contains any of the
// candidate addresses. From headers often carry a display name
// ("Banco Popular <alertas@bpd.com.do>"), so substring match is used.
func senderMatches(from string, senders []string) bool {
	from = strings.ToLower(from)
	for _, s := range senders {
		if s != "" && strings.Contains(from, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
