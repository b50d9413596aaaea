package artifacts

// Status is the pipeline's health classification of a repository.
type Status string

const (
	StatusGreen       Status = "GREEN"
	StatusAutoFixable Status = "AUTO_FIXABLE"
	StatusRed         Status = "RED"
)

// CINone is the ci value the pipeline writes when no CI system was detected.
const CINone = "none"

// DetectionRecord is the content of detect.json.
type DetectionRecord struct {
	Languages      []string `json:"languages"`
	Framework      string   `json:"framework,omitempty"`
	CI             string   `json:"ci,omitempty"`
	PackageManager string   `json:"packageManager,omitempty"`
	Web3Stack      []string `json:"web3Stack,omitempty"`
}

// DiagnosisRecord is the content of diagnosis.json. The first block of fields
// is required by the schema; the rest are optional extras some pipeline
// versions write and the dashboard displays.
type DiagnosisRecord struct {
	Status    Status   `json:"status"`
	Reason    string   `json:"reason"`
	Languages []string `json:"languages"`
	Framework string   `json:"framework"`
	CI        string   `json:"ci"`
	Timestamp string   `json:"timestamp"`

	Repo             string   `json:"repo,omitempty"`
	Vulnerabilities  *int     `json:"vulnerabilities,omitempty"`
	Workflows        []string `json:"workflows,omitempty"`
	Jobs             []string `json:"jobs,omitempty"`
	AIGuardComments  []string `json:"aiGuardComments,omitempty"`
	Web3Stack        []string `json:"web3Stack,omitempty"`
	PRStatus         string   `json:"prStatus,omitempty"`
	PRURL            string   `json:"prUrl,omitempty"`
	AutomergeEnabled bool     `json:"automergeEnabled,omitempty"`
}
