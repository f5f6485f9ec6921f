package store

import "errors"

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrSectorNotFound      = errors.New("sector not found")
	ErrCitizenNotFound     = errors.New("citizen not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRequestNotFound     = errors.New("request not found")

	ErrServiceMode      = errors.New("service mode does not allow this operation")
	ErrActiveTicket     = errors.New("citizen already holds an active ticket")
	ErrDuplicateBooking = errors.New("citizen already holds a booking for this date")
	ErrSlotFull         = errors.New("time slot is at capacity")
	ErrSequenceConflict = errors.New("ticket number allocation conflict")

	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrNotCancellable    = errors.New("appointment is not cancellable")
	ErrNotOwner          = errors.New("entity belongs to another citizen")
)
