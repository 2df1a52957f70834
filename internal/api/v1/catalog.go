package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servorahq/servora/internal/api/dto"
	"github.com/servorahq/servora/internal/domain/catalog"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
	"github.com/servorahq/servora/internal/types"
)

type CatalogHandler struct {
	catalogService service.CatalogService
	logger         *logger.Logger
}

func NewCatalogHandler(catalogService service.CatalogService, logger *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req dto.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	category := &catalog.Category{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	}
	if err := h.catalogService.CreateCategory(c.Request.Context(), category); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CatalogHandler) ListServices(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	if query := c.Query("q"); query != "" {
		services, err := h.catalogService.SearchServices(c.Request.Context(), query, filter)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, services)
		return
	}

	services, err := h.catalogService.ListServices(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *CatalogHandler) ListFeatured(c *gin.Context) {
	services, err := h.catalogService.ListFeaturedServices(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *CatalogHandler) GetService(c *gin.Context) {
	id := c.Param("id")
	svc, err := h.catalogService.GetService(c.Request.Context(), id)
	if err != nil {
		if ierr.IsNotFound(err) {
			// Fall back to slug lookup so catalog URLs stay friendly.
			if bySlug, slugErr := h.catalogService.GetServiceBySlug(c.Request.Context(), id); slugErr == nil {
				c.JSON(http.StatusOK, bySlug)
				return
			}
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *CatalogHandler) CreateService(c *gin.Context) {
	var req dto.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	svc := &catalog.Service{
		CategoryID:    req.CategoryID,
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		DockerImage:   req.DockerImage,
		ContainerPort: req.ContainerPort,
		EnvTemplate:   req.EnvTemplate,
		MountPath:     req.MountPath,
		Featured:      req.Featured,
	}
	if err := h.catalogService.CreateService(c.Request.Context(), svc); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (h *CatalogHandler) ListPlans(c *gin.Context) {
	plans, err := h.catalogService.ListPlansByService(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *CatalogHandler) CreatePlan(c *gin.Context) {
	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	plan := &catalog.Plan{
		ServiceID:           req.ServiceID,
		Name:                req.Name,
		PlanType:            req.PlanType,
		MonthlyPrice:        req.MonthlyPrice,
		CPUMilli:            req.CPUMilli,
		MemoryMB:            req.MemoryMB,
		StorageGB:           req.StorageGB,
		Features:            req.Features,
		TotalQuota:          req.TotalQuota,
		MaxInstancesPerUser: req.MaxInstancesPerUser,
	}
	if err := h.catalogService.CreatePlan(c.Request.Context(), plan); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *CatalogHandler) SetPlanQuota(c *gin.Context) {
	var req dto.SetQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	plan, err := h.catalogService.SetTotalQuota(c.Request.Context(), c.Param("id"), *req.TotalQuota, req.Force)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
