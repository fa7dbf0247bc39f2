package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
	"github.com/noah-isme/academy-enrollment-api/pkg/response"
	"github.com/noah-isme/academy-enrollment-api/pkg/storage"
)

const voucherFormField = "voucher"

type paymentCommands interface {
	AttachVoucher(ctx context.Context, installmentID, voucherRef string, requester *models.Principal) (*models.Installment, error)
	ApproveInstallment(ctx context.Context, installmentID, adminID string) (*models.ApprovalResult, error)
	RejectVoucher(ctx context.Context, installmentID, adminID, reason string) (*models.Installment, error)
}

type voucherStorage interface {
	SaveVoucher(installmentID, contentType string, size int64, r io.Reader) (string, error)
	Delete(ref string) error
}

// PaymentHandler exposes installment payment endpoints.
type PaymentHandler struct {
	payments paymentCommands
	storage  voucherStorage
	logger   *zap.Logger
}

// NewPaymentHandler constructs PaymentHandler. A nil storage disables multipart uploads.
func NewPaymentHandler(payments paymentCommands, storage voucherStorage, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{payments: payments, storage: storage, logger: logger}
}

// AttachVoucher godoc
// @Summary Attach a payment voucher to an installment
// @Description Accepts either a multipart upload in the "voucher" field or a JSON body with an existing reference.
// @Tags Payments
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Installment ID"
// @Param voucher formData file false "Voucher image or PDF"
// @Param payload body dto.AttachVoucherRequest false "Voucher reference"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /installments/{id}/voucher [post]
func (h *PaymentHandler) AttachVoucher(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	installmentID := c.Param("id")

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.attachUpload(c, installmentID, principal)
		return
	}

	var req dto.AttachVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	inst, err := h.payments.AttachVoucher(c.Request.Context(), installmentID, req.VoucherRef, principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

func (h *PaymentHandler) attachUpload(c *gin.Context, installmentID string, principal *models.Principal) {
	if h.storage == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "voucher uploads are disabled"))
		return
	}
	header, err := c.FormFile(voucherFormField)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "voucher file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "unreadable voucher file"))
		return
	}
	defer file.Close()

	ref, err := h.storage.SaveVoucher(installmentID, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		response.Error(c, storageError(err))
		return
	}

	inst, err := h.payments.AttachVoucher(c.Request.Context(), installmentID, ref, principal)
	if err != nil {
		if delErr := h.storage.Delete(ref); delErr != nil {
			h.logger.Warn("failed to remove orphaned voucher", zap.String("ref", ref), zap.Error(delErr))
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return appErrors.Clone(appErrors.ErrInvalidInput, "voucher file exceeds size limit")
	case errors.Is(err, storage.ErrUnsupportedType):
		return appErrors.Clone(appErrors.ErrInvalidInput, "voucher must be an image or PDF")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store voucher")
	}
}

// Approve godoc
// @Summary Approve an installment payment
// @Description Marks the installment paid; the enrollment is accepted once every installment is paid.
// @Tags Admin
// @Produce json
// @Param id path string true "Installment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/installments/{id}/approve [post]
func (h *PaymentHandler) Approve(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	result, err := h.payments.ApproveInstallment(c.Request.Context(), c.Param("id"), principal.SubjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RejectVoucher godoc
// @Summary Reject the voucher attached to an installment
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Installment ID"
// @Param payload body dto.RejectVoucherRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /admin/installments/{id}/reject-voucher [post]
func (h *PaymentHandler) RejectVoucher(c *gin.Context) {
	var req dto.RejectVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	inst, err := h.payments.RejectVoucher(c.Request.Context(), c.Param("id"), principal.SubjectID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}
