package dto

import "github.com/servorahq/servora/internal/types"

type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
}

type CreateServiceRequest struct {
	CategoryID    string         `json:"category_id" binding:"required"`
	Name          string         `json:"name" binding:"required"`
	Slug          string         `json:"slug" binding:"required"`
	Description   string         `json:"description"`
	DockerImage   string         `json:"docker_image" binding:"required"`
	ContainerPort int            `json:"container_port" binding:"required,gt=0,lte=65535"`
	EnvTemplate   types.Metadata `json:"env_template"`
	MountPath     string         `json:"mount_path"`
	Featured      bool           `json:"featured"`
}

type CreatePlanRequest struct {
	ServiceID           string         `json:"service_id" binding:"required"`
	Name                string         `json:"name" binding:"required"`
	PlanType            types.PlanType `json:"plan_type" binding:"required"`
	MonthlyPrice        int64          `json:"monthly_price" binding:"gte=0"`
	CPUMilli            int            `json:"cpu_milli" binding:"required,gt=0"`
	MemoryMB            int            `json:"memory_mb" binding:"required,gt=0"`
	StorageGB           int            `json:"storage_gb" binding:"gte=0"`
	Features            types.Metadata `json:"features"`
	TotalQuota          int            `json:"total_quota" binding:"gte=0"`
	MaxInstancesPerUser int            `json:"max_instances_per_user" binding:"gte=0"`
}

type SetQuotaRequest struct {
	TotalQuota *int `json:"total_quota" binding:"required,gte=0"`
	// Force permits shrinking the quota below current usage.
	Force bool `json:"force"`
}
