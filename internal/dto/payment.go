package dto

// AttachVoucherRequest carries an already stored voucher reference.
type AttachVoucherRequest struct {
	VoucherRef string `json:"voucher_ref" validate:"required,max=512"`
}

// RejectVoucherRequest explains why a voucher was not accepted.
type RejectVoucherRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
