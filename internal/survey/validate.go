package survey

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// Validator checks submitted answer batches against the fixed rule table:
// ratings are whole numbers in [1,7]; free-text fields must be non-empty
// after trimming and contain at least MinLetters alphabetic characters.
type Validator struct {
	MinLetters int
}

const (
	RatingMin = 1
	RatingMax = 7
)

func ratingField(qid int64) string  { return fmt.Sprintf("rating_%d", qid) }
func reasonField(qid int64) string  { return fmt.Sprintf("reason_%d", qid) }
func improveField(qid int64) string { return fmt.Sprintf("improve_%d", qid) }

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func parseRating(raw string) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "Please enter a rating from 1 to 7."
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "Please enter a whole number from 1 to 7."
	}
	if n < RatingMin {
		return 0, "Minimum rating is 1."
	}
	if n > RatingMax {
		return 0, "Maximum rating is 7."
	}
	return n, ""
}

func (v Validator) checkText(text string) string {
	min := v.MinLetters
	if min <= 0 {
		min = 2
	}
	if strings.TrimSpace(text) == "" {
		return "This field is required."
	}
	if letterCount(text) < min {
		return "Please include letters, not just numbers or symbols."
	}
	return ""
}

// ParseSubmission validates one step's full form. Every question's triple is
// checked and all failures come back together; on any failure nothing should
// be persisted. On success it returns one Answer per question (session id
// left unset) in question order.
func (v Validator) ParseSubmission(questions []Question, form url.Values) ([]Answer, ValidationErrors) {
	verrs := ValidationErrors{}
	answers := make([]Answer, 0, len(questions))
	for _, q := range questions {
		a := Answer{QuestionID: q.ID}

		rating, msg := parseRating(form.Get(ratingField(q.ID)))
		if msg != "" {
			verrs.Add(ratingField(q.ID), msg)
		}
		a.Rating = rating

		a.Reason = strings.TrimSpace(form.Get(reasonField(q.ID)))
		if msg := v.checkText(a.Reason); msg != "" {
			verrs.Add(reasonField(q.ID), msg)
		}

		a.Improvement = strings.TrimSpace(form.Get(improveField(q.ID)))
		if msg := v.checkText(a.Improvement); msg != "" {
			verrs.Add(improveField(q.ID), msg)
		}

		answers = append(answers, a)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	return answers, nil
}

// Partial-save error codes, mirrored in the autosave JSON responses.
const (
	PartialBadJSON          = "bad_json"
	PartialInvalidRating    = "invalid_rating"
	PartialRatingOutOfRange = "rating_out_of_range"
	PartialNoFields         = "no_fields"
)

// PartialUpdate is a single-field (or few-field) answer update from an
// autosave call. Text fields skip the letter rule since they represent
// in-progress typing.
type PartialUpdate struct {
	Rating      *int
	Reason      *string
	Improvement *string
}

// Fields lists the update's populated field names for the response payload.
func (p PartialUpdate) Fields() []string {
	var out []string
	if p.Rating != nil {
		out = append(out, "rating")
	}
	if p.Reason != nil {
		out = append(out, "reason")
	}
	if p.Improvement != nil {
		out = append(out, "improve")
	}
	return out
}

// ParsePartial decodes an autosave body. It accepts numeric and
// string-numeric ratings, rejects out-of-range values, and returns one of
// the Partial* codes on failure (empty code on success).
func ParsePartial(body []byte) (PartialUpdate, string) {
	var raw struct {
		Rating  any     `json:"rating"`
		Reason  *string `json:"reason"`
		Improve *string `json:"improve"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return PartialUpdate{}, PartialBadJSON
	}

	var upd PartialUpdate
	switch r := raw.Rating.(type) {
	case nil:
	case string:
		if strings.TrimSpace(r) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(r))
			if err != nil {
				return PartialUpdate{}, PartialInvalidRating
			}
			if n < RatingMin || n > RatingMax {
				return PartialUpdate{}, PartialRatingOutOfRange
			}
			upd.Rating = &n
		}
	case float64:
		if r != float64(int(r)) {
			return PartialUpdate{}, PartialInvalidRating
		}
		n := int(r)
		if n < RatingMin || n > RatingMax {
			return PartialUpdate{}, PartialRatingOutOfRange
		}
		upd.Rating = &n
	default:
		return PartialUpdate{}, PartialInvalidRating
	}

	if raw.Reason != nil {
		s := strings.TrimSpace(*raw.Reason)
		upd.Reason = &s
	}
	if raw.Improve != nil {
		s := strings.TrimSpace(*raw.Improve)
		upd.Improvement = &s
	}
	if upd.Rating == nil && upd.Reason == nil && upd.Improvement == nil {
		return PartialUpdate{}, PartialNoFields
	}
	return upd, ""
}
