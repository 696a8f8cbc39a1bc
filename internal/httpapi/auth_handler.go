package httpapi

import (
	"fmt"
	"net/http"

	"github.com/co2market/auth-service/internal/account"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username            string `json:"username" binding:"required"`
	Email               string `json:"email" binding:"required"`
	Password            string `json:"password" binding:"required"`
	FirstName           string `json:"firstName" binding:"required"`
	LastName            string `json:"lastName" binding:"required"`
	Role                string `json:"role"`
	PhoneNumber         string `json:"phoneNumber"`
	Region              string `json:"region"`
	VehicleMake         string `json:"vehicleMake"`
	VehicleModel        string `json:"vehicleModel"`
	VehicleLicensePlate string `json:"vehicleLicensePlate"`
	OrganizationName    string `json:"organizationName"`
	TaxID               string `json:"taxId"`
	CertificationAgency string `json:"certificationAgency"`
	LicenseNumber       string `json:"licenseNumber"`
}

type loginRequest struct {
	// UsernameOrEmail matches the original client contract; username is accepted too.
	UsernameOrEmail string `json:"usernameOrEmail"`
	Username        string `json:"username"`
	Password        string `json:"password" binding:"required"`
}

type authHandler struct {
	accounts account.Service
}

func (h *authHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: %w", account.ErrValidation, err))
		return
	}
	role, err := account.ParseRole(req.Role)
	if err != nil {
		abort(c, 0, err)
		return
	}

	summary, err := h.accounts.Register(c.Request.Context(), account.RegisterRequest{
		Username:            req.Username,
		Email:               req.Email,
		Password:            req.Password,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Role:                role,
		PhoneNumber:         req.PhoneNumber,
		Region:              req.Region,
		VehicleMake:         req.VehicleMake,
		VehicleModel:        req.VehicleModel,
		LicensePlate:        req.VehicleLicensePlate,
		OrganizationName:    req.OrganizationName,
		TaxID:               req.TaxID,
		CertificationAgency: req.CertificationAgency,
		LicenseNumber:       req.LicenseNumber,
	})
	if err != nil {
		abort(c, 0, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *authHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: %w", account.ErrValidation, err))
		return
	}
	identifier := req.UsernameOrEmail
	if identifier == "" {
		identifier = req.Username
	}

	summary, err := h.accounts.Login(c.Request.Context(), account.LoginRequest{
		Username:  identifier,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		abort(c, 0, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
