package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/postreach/postreach/internal/model"
)

// publicProviders never trigger a company match
var publicProviders = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {}, "icloud.com": {},
	"aol.com": {}, "protonmail.com": {}, "zoho.com": {}, "yandex.com": {}, "mail.com": {},
	"msn.com": {}, "live.com": {}, "me.com": {}, "googlemail.com": {}, "rocketmail.com": {},
	"btinternet.com": {}, "comcast.net": {}, "verizon.net": {}, "cox.net": {}, "att.net": {},
	"sbcglobal.net": {}, "bellsouth.net": {}, "charter.net": {}, "shaw.ca": {}, "earthlink.net": {},
	"mail.ru": {}, "gmx.com": {}, "gmx.de": {}, "web.de": {}, "t-online.de": {}, "libero.it": {},
	"virgilio.it": {}, "alice.it": {}, "wanadoo.fr": {}, "orange.fr": {}, "free.fr": {}, "laposte.net": {},
	"rediffmail.com": {}, "indiatimes.com": {}, "tiscali.it": {}, "uol.com.br": {}, "bol.com.br": {},
	"terra.com.br": {}, "ig.com.br": {}, "globomail.com": {}, "oi.com.br": {}, "sky.com": {},
	"virginmedia.com": {}, "ntlworld.com": {}, "blueyonder.co.uk": {}, "talktalk.net": {},
}

// secondLevelLabels mark suffixes such as co.uk where the organisation is one label further left
var secondLevelLabels = map[string]struct{}{
	"com": {}, "co": {}, "org": {}, "net": {}, "edu": {}, "gov": {}, "ac": {},
}

// BaseDomain approximates the organisational domain, so mail.acme.com
// becomes acme.com and hr.acme.co.uk becomes acme.co.uk. It does not
// consult a public suffix list and will misjudge some country domains.
func BaseDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) <= 2 {
		return domain
	}
	if _, ok := secondLevelLabels[parts[len(parts)-2]]; ok {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// IsPublicProvider reports whether domain is a free mail provider
func IsPublicProvider(domain string) bool {
	_, ok := publicProviders[domain]
	return ok
}

func normalizeEmail(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" || !strings.Contains(e, "@") {
		return "", false
	}
	return e, true
}

func domainOf(email string) string {
	return email[strings.LastIndex(email, "@")+1:]
}

// DedupResult partitions candidate recipients
type DedupResult struct {
	Clean          []string
	Duplicates     []string
	CompanyMatches []model.CompanyMatch
}

// ContactHistory indexes who has been emailed before
type ContactHistory struct {
	sent    map[string]struct{}
	domains map[string]string // domain or base domain -> first address contacted there
}

// NewContactHistory builds the indexes from send history records
func NewContactHistory(records []model.SentEmail) *ContactHistory {
	h := &ContactHistory{
		sent:    make(map[string]struct{}, len(records)),
		domains: make(map[string]string),
	}
	for _, r := range records {
		h.add(r.RecipientEmail)
	}
	return h
}

func (h *ContactHistory) add(raw string) {
	email, ok := normalizeEmail(raw)
	if !ok {
		return
	}
	h.sent[email] = struct{}{}

	domain := domainOf(email)
	if domain == "" || IsPublicProvider(domain) {
		return
	}
	if _, ok := h.domains[domain]; !ok {
		h.domains[domain] = email
	}
	if base := BaseDomain(domain); base != "" && base != domain {
		if _, ok := h.domains[base]; !ok {
			h.domains[base] = email
		}
	}
}

// Contacted reports whether the exact address has been emailed
func (h *ContactHistory) Contacted(email string) bool {
	_, ok := h.sent[email]
	return ok
}

// Classify sorts candidates into clean, already-sent and same-company
func (h *ContactHistory) Classify(emails []string) *DedupResult {
	res := &DedupResult{
		Clean:          []string{},
		Duplicates:     []string{},
		CompanyMatches: []model.CompanyMatch{},
	}
	seen := make(map[string]struct{}, len(emails))

	for _, raw := range emails {
		email, ok := normalizeEmail(raw)
		if !ok {
			continue
		}
		if _, dup := seen[email]; dup || h.Contacted(email) {
			res.Duplicates = append(res.Duplicates, email)
			continue
		}
		seen[email] = struct{}{}

		domain := domainOf(email)
		if prev, ok := h.domains[domain]; ok {
			res.CompanyMatches = append(res.CompanyMatches, model.CompanyMatch{Email: email, Previous: prev})
			continue
		}
		if base := BaseDomain(domain); base != "" {
			if prev, ok := h.domains[base]; ok {
				res.CompanyMatches = append(res.CompanyMatches, model.CompanyMatch{Email: email, Previous: prev})
				continue
			}
		}
		res.Clean = append(res.Clean, email)
	}
	return res
}

// HistoryStore is the append-only log of delivered messages
type HistoryStore interface {
	All(ctx context.Context) ([]model.SentEmail, error)
	Append(ctx context.Context, rec model.SentEmail) error
}

// RecipientDeduplicator filters candidates against the send history
type RecipientDeduplicator struct {
	history HistoryStore
}

// NewRecipientDeduplicator creates a new RecipientDeduplicator
func NewRecipientDeduplicator(history HistoryStore) *RecipientDeduplicator {
	return &RecipientDeduplicator{history: history}
}

// Partition classifies emails against a fresh read of the history.
// With skipDedup the addresses are only normalized.
func (d *RecipientDeduplicator) Partition(ctx context.Context, emails []string, skipDedup bool) (*DedupResult, error) {
	if skipDedup {
		res := &DedupResult{Clean: []string{}, Duplicates: []string{}, CompanyMatches: []model.CompanyMatch{}}
		for _, raw := range emails {
			if e, ok := normalizeEmail(raw); ok {
				res.Clean = append(res.Clean, e)
			}
		}
		return res, nil
	}

	records, err := d.history.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read send history: %w", err)
	}
	return NewContactHistory(records).Classify(emails), nil
}
