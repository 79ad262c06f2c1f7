package refdata

// Department keys.
const (
	DeptShipping   = "shipping"
	DeptWarehouse  = "warehouse"
	DeptLab        = "lab"
	DeptTechOffice = "tech_office"
)

// Status keys.
const (
	StatusPending              = "pending"
	StatusInProcess            = "in_process"
	StatusInLab                = "in_lab"
	StatusCompleted            = "completed"
	StatusRejected             = "rejected"
	StatusAwaitingResult       = "awaiting_result"
	StatusSentToWarehouse      = "sent_to_warehouse"
	StatusSentToShipping       = "sent_to_shipping"
	StatusReturnedToTechOffice = "returned_to_tech_office"
)

// Urgency keys.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// Department is an organizational unit that holds requests.
type Department struct {
	ID          int64  `json:"id" yaml:"-"`
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Active      bool   `json:"active" yaml:"active"`
}

// Status is a lifecycle label attached to a request.
type Status struct {
	ID          int64  `json:"id" yaml:"-"`
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Color       string `json:"color" yaml:"color"`
}

// Urgency is a priority level. Higher Priority sorts first.
type Urgency struct {
	ID          int64  `json:"id" yaml:"-"`
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Priority    int    `json:"priority" yaml:"priority"`
	Color       string `json:"color" yaml:"color"`
}

var requiredDepartments = []string{DeptShipping, DeptWarehouse, DeptLab, DeptTechOffice}

var requiredStatuses = []string{
	StatusPending,
	StatusInProcess,
	StatusInLab,
	StatusCompleted,
	StatusRejected,
	StatusAwaitingResult,
	StatusSentToWarehouse,
	StatusSentToShipping,
	StatusReturnedToTechOffice,
}

var requiredUrgencies = []string{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}
