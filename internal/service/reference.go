package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/sirupsen/logrus"
)

// Errors returned by reference lists.
var (
	ErrReferenceFixed   = errors.New("this list cannot be extended")
	ErrReferenceEmpty   = errors.New("name is required")
	ErrReferenceExists  = errors.New("name already exists")
	ErrReferenceUnknown = errors.New("unknown reference list")
)

// ReferenceSource is the upstream store of dropdown values.
// Satisfied by *apiclient.Client.
type ReferenceSource interface {
	ListReference(ctx context.Context, kind string) ([]string, error)
	AddReference(ctx context.Context, kind, name string) error
}

// ReferenceList is one dropdown list (statuses, couriers, ...). Values are
// matched case-insensitively by their label.
type ReferenceList[T any] struct {
	kind     string
	source   ReferenceSource
	defaults []T
	fixed    bool
	parse    func(string) T
	label    func(T) string
	log      logrus.FieldLogger
}

// List returns the defaults merged with the upstream entries, duplicates
// removed. When the upstream is unreachable the defaults are returned and the
// error is logged.
func (l *ReferenceList[T]) List(ctx context.Context) ([]T, error) {
	if l.fixed {
		return append([]T(nil), l.defaults...), nil
	}

	names, err := l.source.ListReference(ctx, l.kind)
	if err != nil {
		l.log.WithError(err).WithField("kind", l.kind).Warn("reference list unavailable, using defaults")
		names = nil
	}

	out := make([]T, 0, len(l.defaults)+len(names))
	seen := make(map[string]bool, cap(out))
	add := func(v T) {
		key := strings.ToLower(strings.TrimSpace(l.label(v)))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}
	for _, v := range l.defaults {
		add(v)
	}
	for _, n := range names {
		add(l.parse(n))
	}
	return out, nil
}

// Add stores a new value upstream. Names already in the list (ignoring case)
// are rejected.
func (l *ReferenceList[T]) Add(ctx context.Context, value T) (T, error) {
	var zero T
	if l.fixed {
		return zero, ErrReferenceFixed
	}
	name := strings.TrimSpace(l.label(value))
	if name == "" {
		return zero, ErrReferenceEmpty
	}

	current, err := l.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, v := range current {
		if strings.EqualFold(l.label(v), name) {
			return zero, fmt.Errorf("%s %q: %w", l.kind, name, ErrReferenceExists)
		}
	}

	if err := l.source.AddReference(ctx, l.kind, name); err != nil {
		return zero, err
	}
	return l.parse(name), nil
}

// Label is a plain dropdown value.
type Label string

func labelList(kind string, source ReferenceSource, log logrus.FieldLogger, fixed bool, defaults ...string) *ReferenceList[Label] {
	ds := make([]Label, len(defaults))
	for i, d := range defaults {
		ds[i] = Label(d)
	}
	return &ReferenceList[Label]{
		kind:     kind,
		source:   source,
		defaults: ds,
		fixed:    fixed,
		parse:    func(s string) Label { return Label(strings.TrimSpace(s)) },
		label:    func(l Label) string { return string(l) },
		log:      log,
	}
}

// ReferenceService serves every dropdown list of the order form.
type ReferenceService struct {
	lists map[string]*ReferenceList[Label]
}

func NewReferenceService(source ReferenceSource, log logrus.FieldLogger) *ReferenceService {
	log = log.WithField("component", "reference")
	return &ReferenceService{lists: map[string]*ReferenceList[Label]{
		enum.RefStatuses: labelList(enum.RefStatuses, source, log, false,
			enum.OrderStatusDispatch, enum.OrderStatusDelivered, enum.OrderStatusInTransit,
			enum.OrderStatusOutForDelivery, enum.OrderStatusCancelled, enum.OrderStatusReturned),
		enum.RefPaymentStatuses: labelList(enum.RefPaymentStatuses, source, log, true,
			enum.PaymentStatusPaid, enum.PaymentStatusUnpaid, enum.PaymentStatusPartial),
		enum.RefCouriers: labelList(enum.RefCouriers, source, log, false,
			enum.CourierTCS, enum.CourierLeopards, enum.CourierDHL, enum.CourierFedEx),
		enum.RefChannels: labelList(enum.RefChannels, source, log, false,
			enum.ChannelWhatsapp, enum.ChannelDirect, enum.ChannelOnline),
	}}
}

// Kinds lists the reference lists served.
func (s *ReferenceService) Kinds() []string {
	return []string{enum.RefStatuses, enum.RefPaymentStatuses, enum.RefCouriers, enum.RefChannels}
}

func (s *ReferenceService) List(ctx context.Context, kind string) ([]Label, error) {
	l, ok := s.lists[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrReferenceUnknown, kind)
	}
	return l.List(ctx)
}

func (s *ReferenceService) Add(ctx context.Context, kind, name string) (Label, error) {
	l, ok := s.lists[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrReferenceUnknown, kind)
	}
	return l.Add(ctx, Label(name))
}
