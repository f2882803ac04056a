package shortage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
)

// ErrIntegrity matches any IntegrityError via errors.Is
var ErrIntegrity = errors.New("master data integrity fault")

// IntegrityKind identifies which relationship is broken
type IntegrityKind string

const (
	IntegrityBOMComponent IntegrityKind = "bom_component"
	IntegritySubstitute   IntegrityKind = "substitute"
	IntegrityOrderProduct IntegrityKind = "order_product"
	IntegrityOrderSite    IntegrityKind = "order_site"
)

// IntegrityError reports a reference to a product or plant site that does
// not exist. It describes broken master data, not a stock level.
type IntegrityError struct {
	Kind      IntegrityKind
	Reference string // the missing PKID or site code
	Referrer  string // the parent, primary part or order that points at it
}

func (e *IntegrityError) Error() string {
	switch e.Kind {
	case IntegrityBOMComponent:
		return fmt.Sprintf("bom of %s references unknown component %s", e.Referrer, e.Reference)
	case IntegritySubstitute:
		return fmt.Sprintf("substitute link of %s references unknown part %s", e.Referrer, e.Reference)
	case IntegrityOrderProduct:
		return fmt.Sprintf("order line %s references unknown product %s", e.Referrer, e.Reference)
	case IntegrityOrderSite:
		return fmt.Sprintf("order line %s references unknown production site %s", e.Referrer, e.Reference)
	}
	return fmt.Sprintf("%s: %s -> %s", e.Kind, e.Referrer, e.Reference)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// LineFault ties a computation error to the order line it occurred on
type LineFault struct {
	OrderID uuid.UUID
	Order   domain.OrderKey
	Err     error
}

// ReportError fails a whole report run. Every faulted line is listed; the
// lines that computed cleanly are counted but not returned.
type ReportError struct {
	Faults    []LineFault
	Completed int
}

func (e *ReportError) Error() string {
	refs := make([]string, 0, len(e.Faults))
	for _, f := range e.Faults {
		refs = append(refs, fmt.Sprintf("%s: %v", f.Order, f.Err))
	}
	return fmt.Sprintf("shortage report failed on %d order line(s): %s", len(e.Faults), strings.Join(refs, "; "))
}

// Unwrap exposes the per-line errors to errors.Is and errors.As
func (e *ReportError) Unwrap() []error {
	errs := make([]error, len(e.Faults))
	for i, f := range e.Faults {
		errs[i] = f.Err
	}
	return errs
}
