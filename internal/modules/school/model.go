// README: School reference data (name, address, location).
package school

import (
	"time"

	"schoolride/internal/types"
)

type School struct {
	ID        types.ID    `json:"id"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	Location  types.Point `json:"location"`
	CreatedAt time.Time   `json:"created_at"`
}
