package catalog

import (
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// Category groups services in the catalog.
type Category struct {
	ID          string `db:"id" json:"id" gorm:"primaryKey"`
	Name        string `db:"name" json:"name"`
	Slug        string `db:"slug" json:"slug" gorm:"uniqueIndex"`
	Description string `db:"description" json:"description"`

	types.BaseModel
}

func (c *Category) TableName() string {
	return "service_categories"
}

func (c *Category) Validate() error {
	if c.Name == "" {
		return ierr.NewError("category name is required").
			Mark(ierr.ErrValidation)
	}
	if c.Slug == "" {
		return ierr.NewError("category slug is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Service is a deployable catalog offering.
type Service struct {
	ID            string         `db:"id" json:"id" gorm:"primaryKey"`
	CategoryID    string         `db:"category_id" json:"category_id" gorm:"index"`
	Name          string         `db:"name" json:"name"`
	Slug          string         `db:"slug" json:"slug" gorm:"uniqueIndex"`
	Description   string         `db:"description" json:"description"`
	DockerImage   string         `db:"docker_image" json:"docker_image"`
	ContainerPort int            `db:"container_port" json:"container_port"`
	// EnvTemplate maps environment variable names to default values; instance
	// provisioning overlays instance-specific values on top.
	EnvTemplate types.Metadata `db:"env_template" json:"env_template" gorm:"type:jsonb;serializer:json"`
	// MountPath is where the storage claim is mounted in the workload.
	MountPath string         `db:"mount_path" json:"mount_path"`
	Metadata  types.Metadata `db:"metadata" json:"metadata" gorm:"type:jsonb;serializer:json"`
	Featured  bool           `db:"featured" json:"featured"`

	types.BaseModel
}

func (s *Service) TableName() string {
	return "services"
}

func (s *Service) Validate() error {
	if s.Slug == "" {
		return ierr.NewError("service slug is required").
			WithHint("Slug is required").
			Mark(ierr.ErrValidation)
	}
	if s.DockerImage == "" {
		return ierr.NewError("docker image is required").
			WithHint("Docker image is required").
			Mark(ierr.ErrValidation)
	}
	if s.ContainerPort <= 0 || s.ContainerPort > 65535 {
		return ierr.NewError("invalid container port").
			WithHintf("Container port %d is out of range", s.ContainerPort).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Plan is a priced tier of a service carrying resource limits and the
// admission counter.
type Plan struct {
	ID           string         `db:"id" json:"id" gorm:"primaryKey"`
	ServiceID    string         `db:"service_id" json:"service_id" gorm:"index:idx_plans_service_type,unique,priority:1"`
	Name         string         `db:"name" json:"name"`
	PlanType     types.PlanType `db:"plan_type" json:"plan_type" gorm:"index:idx_plans_service_type,unique,priority:2"`
	MonthlyPrice int64          `db:"monthly_price" json:"monthly_price"`
	CPUMilli     int            `db:"cpu_milli" json:"cpu_milli"`
	MemoryMB     int            `db:"memory_mb" json:"memory_mb"`
	StorageGB    int            `db:"storage_gb" json:"storage_gb"`
	Features     types.Metadata `db:"features" json:"features" gorm:"type:jsonb;serializer:json"`

	TotalQuota          int  `db:"total_quota" json:"total_quota"`
	UsedQuota           int  `db:"used_quota" json:"used_quota"`
	MaxInstancesPerUser int  `db:"max_instances_per_user" json:"max_instances_per_user"`
	OverAllocated       bool `db:"over_allocated" json:"over_allocated"`

	types.BaseModel
}

func (p *Plan) TableName() string {
	return "service_plans"
}

func (p *Plan) Validate() error {
	if !p.PlanType.Validate() {
		return ierr.NewError("invalid plan type").
			WithReportableDetails(map[string]any{"plan_type": p.PlanType}).
			Mark(ierr.ErrValidation)
	}
	if p.MonthlyPrice < 0 {
		return ierr.NewError("monthly price cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if p.UsedQuota < 0 || p.UsedQuota > p.TotalQuota {
		return ierr.NewError("used quota out of bounds").
			WithReportableDetails(map[string]any{
				"used_quota":  p.UsedQuota,
				"total_quota": p.TotalQuota,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AvailableQuota is the number of open subscription slots on the plan.
func (p *Plan) AvailableQuota() int {
	if q := p.TotalQuota - p.UsedQuota; q > 0 {
		return q
	}
	return 0
}

// IsAvailable reports whether a new subscription can be admitted.
func (p *Plan) IsAvailable() bool {
	return !p.OverAllocated && p.AvailableQuota() > 0
}
