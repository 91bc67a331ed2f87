package store

import "time"

// Clone record statuses.
const (
	CloneStatusScheduled = "scheduled"
	CloneStatusPublished = "published"
)

// CreatedList is the audit record written once per campaign allocation,
// including allocations that selected no contacts.
type CreatedList struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RemoteListID    string    `json:"remoteListId"`
	CreatedAt       time.Time `json:"createdAt"`
	Deleted         bool      `json:"deleted"`
	FilterCriteria  string    `json:"filterCriteria"`
	CampaignDetails string    `json:"campaignDetails"`
	ContactCount    int       `json:"contactCount"`
	RequestedCount  int       `json:"requestedCount"`
	AvailableCount  int       `json:"availableCount"`
	FilteredCount   int       `json:"filteredCount"`
	FulfillmentPct  int       `json:"fulfillmentPct"`
}

// ClonedEmail is the audit record written after a successful remote clone.
// Status and PublishedAt are mutated by the publish operation.
type ClonedEmail struct {
	ID            string     `json:"id"`
	SourceEmailID string     `json:"sourceEmailId"`
	ClonedEmailID string     `json:"clonedEmailId"`
	ClonedName    string     `json:"clonedName"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	Strategy      string     `json:"strategy"`
	Status        string     `json:"status"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
}
