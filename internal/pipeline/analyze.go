package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dmfontes/callscribe/pkg/models"
)

const placeholderSummary = "Summary generation failed."

// minAnalyzableLength is the shortest transcript worth analyzing.
const minAnalyzableLength = 50

// Compliance holds the rule-based findings over one transcript.
type Compliance struct {
	Positives   []string `json:"positives"`
	Negatives   []string `json:"negatives"`
	Installment string   `json:"installment,omitempty"`
	Accepted    *bool    `json:"accepted"`
}

// Analysis is the analyze stage output.
type Analysis struct {
	Summary    string     `json:"summary"`
	Topics     string     `json:"topics"`
	Compliance Compliance `json:"compliance"`
}

// Built-in indicator lists for the programmed savings product. Database
// rules extend these at analysis time.
var (
	defaultPositive = []string{
		"programmed savings", "savings certificate", "capitalization product",
		"sixty months", "five years", "grace period", "twelve months",
		"weekly draw", "monthly draw", "quarterly draw", "annual draw",
		"lucky number", "eligible for prizes", "prize of up to",
		"redemption", "at the end of the plan", "redemption value",
		"monetary correction", "inflation adjustment",
		"customer service center", "automatic debit",
		"not an investment", "no guaranteed return",
	}
	defaultNegative = []string{
		"investment", "guaranteed return", "profitability",
		"financial investment", "mandatory", "you have to accept",
		"urgent", "only today", "last chance",
	}

	acceptPatterns = []string{
		"i accept", "i authorize", "that's fine", "i confirm", "sounds good", "deal",
	}
	declinePatterns = []string{
		"i don't want", "i do not want", "i don't accept", "i do not accept",
		"i don't authorize", "i give up", "cancel",
	}

	moneyPattern = regexp.MustCompile(`\$\s?(\d+(?:[.,]\d{2})?)`)

	// Installment amounts the product actually offers.
	validInstallments = map[string]bool{
		"20": true, "30": true, "40": true, "50": true, "60": true,
		"70": true, "80": true, "90": true, "100": true, "110": true,
		"120": true, "130": true, "140": true, "150": true, "160": true,
		"170": true, "180": true, "190": true, "200": true,
	}
)

// Analyzer produces the compliance findings, summary, and topics for a
// transcript using keyword rules plus local extractive summarization.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze never returns partial output: either a full analysis or an error
// the caller degrades on. Transcripts below the length floor get a short
// fixed summary.
func (a *Analyzer) Analyze(text string, rules []models.AnalysisRule) (*Analysis, error) {
	if len(text) < minAnalyzableLength {
		return &Analysis{Summary: "Transcript too short to analyze.", Topics: ""}, nil
	}

	lower := strings.ToLower(text)
	compliance := checkCompliance(lower, rules)

	return &Analysis{
		Summary:    buildSummary(text, compliance),
		Topics:     extractTopics(lower),
		Compliance: compliance,
	}, nil
}

// checkCompliance scans the transcript for indicator terms, the mentioned
// installment amount, and the client's final decision.
func checkCompliance(lower string, rules []models.AnalysisRule) Compliance {
	positive := append([]string{}, defaultPositive...)
	negative := append([]string{}, defaultNegative...)

	for _, rule := range rules {
		for _, kw := range strings.Split(rule.Keywords, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			switch rule.Category {
			case models.RuleCategoryPositive:
				positive = append(positive, kw)
			case models.RuleCategoryNegative, models.RuleCategoryCritical:
				negative = append(negative, kw)
			}
		}
	}

	c := Compliance{Positives: []string{}, Negatives: []string{}}
	for _, term := range dedupe(positive) {
		if strings.Contains(lower, term) {
			c.Positives = append(c.Positives, term)
		}
	}
	for _, term := range dedupe(negative) {
		if strings.Contains(lower, term) {
			c.Negatives = append(c.Negatives, term)
		}
	}

	for _, match := range moneyPattern.FindAllStringSubmatch(lower, -1) {
		amount := strings.NewReplacer(",", "", ".", "").Replace(match[1])
		if len(amount) >= 3 {
			// Strip the cents captured by the decimal group.
			amount = amount[:len(amount)-2]
		}
		if validInstallments[amount] {
			c.Installment = fmt.Sprintf("$%s.00", amount)
			break
		}
	}

	// The decision that appears last in the call wins.
	lastAccept := lastIndexAny(lower, acceptPatterns)
	lastDecline := lastIndexAny(lower, declinePatterns)
	switch {
	case lastAccept > lastDecline:
		accepted := true
		c.Accepted = &accepted
	case lastDecline > lastAccept:
		accepted := false
		c.Accepted = &accepted
	}
	return c
}

func lastIndexAny(s string, patterns []string) int {
	last := -1
	for _, p := range patterns {
		if pos := strings.LastIndex(s, p); pos > last {
			last = pos
		}
	}
	return last
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// buildSummary renders the structured call summary: decision, installment,
// compliance counts, and the three highest-scoring transcript sentences.
func buildSummary(text string, c Compliance) string {
	var parts []string
	parts = append(parts, "CALL SUMMARY - PROGRAMMED SAVINGS")

	if c.Installment != "" {
		parts = append(parts, fmt.Sprintf("Installment mentioned: %s/month", c.Installment))
	}

	switch {
	case c.Accepted != nil && *c.Accepted:
		parts = append(parts, "Client: ACCEPTED the proposal")
	case c.Accepted != nil:
		parts = append(parts, "Client: DECLINED the proposal")
	default:
		parts = append(parts, "Client: decision not identified")
	}

	if len(c.Positives) > 0 {
		parts = append(parts, fmt.Sprintf("Compliance terms matched: %d", len(c.Positives)))
	}
	if len(c.Negatives) > 0 && (c.Accepted == nil || !*c.Accepted) {
		alerts := c.Negatives
		if len(alerts) > 3 {
			alerts = alerts[:3]
		}
		parts = append(parts, "ALERTS: "+strings.Join(alerts, ", "))
	}

	parts = append(parts, "Key points:")
	for _, sentence := range topSentences(text, 3) {
		parts = append(parts, "- "+sentence)
	}
	return strings.Join(parts, "\n")
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// topSentences scores sentences by the summed frequency of their words and
// returns the best n in original order.
func topSentences(text string, n int) []string {
	sentences := []string{}
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(strings.Fields(s)) >= 4 {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= n {
		return sentences
	}

	freq := map[string]int{}
	for _, s := range sentences {
		for _, w := range tokenize(s) {
			freq[w]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		words := tokenize(s)
		var sum int
		for _, w := range words {
			sum += freq[w]
		}
		ranked[i] = scored{index: i, score: float64(sum) / float64(len(words)+1)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picked := ranked[:n]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	out := make([]string, n)
	for i, p := range picked {
		out[i] = sentences[p.index]
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "for": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "this": true, "that": true, "with": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "not": true, "no": true,
	"yes": true, "so": true, "then": true, "there": true, "here": true,
	"well": true, "okay": true, "ok": true, "sir": true, "madam": true,
	"my": true, "your": true, "me": true, "him": true, "her": true, "us": true,
	"can": true, "will": true, "would": true, "just": true, "like": true,
	"what": true, "when": true, "how": true, "all": true, "as": true, "if": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

func tokenize(s string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		if len(w) > 2 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

const maxTopics = 15

// extractTopics returns the most frequent unigrams and bigrams as a
// comma-separated list, most frequent first.
func extractTopics(lower string) string {
	words := tokenize(lower)
	if len(words) == 0 {
		return ""
	}

	freq := map[string]int{}
	for _, w := range words {
		freq[w]++
	}
	for i := 0; i+1 < len(words); i++ {
		freq[words[i]+" "+words[i+1]]++
	}

	type term struct {
		text  string
		count int
	}
	terms := make([]term, 0, len(freq))
	for t, c := range freq {
		if c > 1 {
			terms = append(terms, term{t, c})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].text < terms[j].text
	})

	if len(terms) > maxTopics {
		terms = terms[:maxTopics]
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.text
	}
	return strings.Join(out, ", ")
}
