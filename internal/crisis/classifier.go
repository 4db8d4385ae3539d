package crisis

import (
	"context"
	"strings"
)

// Detection is the classifier verdict: crisis yes/no plus severity.
type Detection struct {
	Crisis   bool
	Severity string
}

// Classifier is the external collaborator that inspects message content.
// Model internals are out of scope here; the pipeline only consumes its
// verdict.
type Classifier interface {
	Classify(ctx context.Context, content string) (Detection, error)
}

// KeywordClassifier is a conservative fallback classifier used when no
// external model endpoint is configured. It only matches a fixed phrase list.
type KeywordClassifier struct{}

var criticalPhrases = []string{
	"kill myself",
	"end my life",
	"suicide",
	"want to die",
}

var highPhrases = []string{
	"hurt myself",
	"self harm",
	"no reason to live",
}

func (KeywordClassifier) Classify(ctx context.Context, content string) (Detection, error) {
	lowered := strings.ToLower(content)
	for _, phrase := range criticalPhrases {
		if strings.Contains(lowered, phrase) {
			return Detection{Crisis: true, Severity: "critical"}, nil
		}
	}
	for _, phrase := range highPhrases {
		if strings.Contains(lowered, phrase) {
			return Detection{Crisis: true, Severity: "high"}, nil
		}
	}
	return Detection{}, nil
}
