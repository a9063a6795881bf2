package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// siteFlag returns nil when --site was not given, else the id.  Site ids
// are positive; 0 would yield a credential or job context no tenant owns.
func siteFlag(cmd *cobra.Command, id int64) (*int64, error) {
	if !cmd.Flags().Changed("site") {
		return nil, nil
	}
	if id <= 0 {
		return nil, fmt.Errorf("--site must be a positive site id, got %d", id)
	}
	return &id, nil
}
