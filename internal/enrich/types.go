package enrich

import "time"

// BacklogRecord is a supporter row that still lacks voting-location data.
// BirthDate holds whatever the store returned: a string or a time.Time.
type BacklogRecord struct {
	ID         string
	BirthDate  any
	MotherName string
}

// NormalizedRecord is a BacklogRecord in the shape the remote form expects.
type NormalizedRecord struct {
	ID         string
	BirthDate  string
	MotherName string
}

// QueueItem is one unit of work handed to a worker.
type QueueItem struct {
	Seq int
	// SourceID is the identifier exactly as stored, used to key the write-back.
	SourceID string
	Record   NormalizedRecord
}

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int64
	Height int64
}

// Geolocation is an emulated device position.
type Geolocation struct {
	Label     string
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Identity is the client profile a Session presents to the remote service.
type Identity struct {
	UserAgent           string
	Platform            string
	Locale              string
	Languages           []string
	Timezone            string
	Viewport            Viewport
	Geolocation         Geolocation
	HardwareConcurrency int
	DeviceMemory        int
}

// Result is the structured voting-location data scraped for one record.
// Nil fields mean the service did not report them.
type Result struct {
	Local     *string `json:"local"`
	Endereco  *string `json:"endereco"`
	Municipio *string `json:"municipio"`
	Bairro    *string `json:"bairro"`
	Secao     *string `json:"secao"`
	Pais      *string `json:"pais"`
	Zona      *string `json:"zona"`
	Biometria bool    `json:"biometria"`
}

// OutcomeKind classifies an attempt.
type OutcomeKind string

const (
	// OutcomeSuccess means the service returned voting data.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeNotFound means the service answered that the person is unknown.
	OutcomeNotFound OutcomeKind = "not_found"
	// OutcomeFailure means the attempt could not reach a definitive answer.
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is the single result of one attempt for one record.
type Outcome struct {
	Kind    OutcomeKind
	Result  *Result
	Message string
	Stage   string
	Err     error
}

// Success builds a success outcome around r.
func Success(r Result) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: &r}
}

// NotFound builds a not-found outcome. It persists as an all-null result.
func NotFound(message string) Outcome {
	return Outcome{Kind: OutcomeNotFound, Result: &Result{}, Message: message}
}

// TechnicalFailure builds a failure outcome tagged with the stage that broke.
func TechnicalFailure(stage string, err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Stage: stage, Err: &StepError{Stage: stage, Err: err}}
}

// Persistable reports whether the outcome is a definitive answer worth writing back.
func (o Outcome) Persistable() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeNotFound
}

// Attempt describes a finished attempt for reporting.
type Attempt struct {
	Worker   int
	Item     QueueItem
	Outcome  Outcome
	Started  time.Time
	Duration time.Duration
}
