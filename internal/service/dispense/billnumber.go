package dispense

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateBillNumber produces the externally displayed identifier in the
// form YYYYMMDD-<6-digit-suffix>-<5-char-suffix>: assignment date,
// zero-padded low six digits of unix milliseconds, and the tail of the
// dispense identity. Assigned exactly once, on the first payment that
// moves the bill out of pending.
func generateBillNumber(id uuid.UUID, now time.Time) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("%s-%06d-%s",
		now.Format("20060102"),
		now.UnixMilli()%1000000,
		hex[len(hex)-5:],
	)
}
