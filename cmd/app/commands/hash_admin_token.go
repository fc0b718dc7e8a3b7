package commands

import (
	"fmt"
	"io"
	"log/slog"
)

// TokenGenerator creates a random token and its hash.
type TokenGenerator interface {
	Generate() (plainToken string, tokenHash string, err error)
}

// RunHashAdminToken generates an admin API token. The hash goes into ADMIN_TOKEN_HASH
// and the plain token is handed to the operator.
func RunHashAdminToken(generator TokenGenerator, logger *slog.Logger, w io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	plainToken, tokenHash, err := generator.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate admin token: %w", err)
	}

	logger.Info("admin token generated")

	if format == "json" {
		return writeJSON(w, map[string]string{
			"token":      plainToken,
			"token_hash": tokenHash,
		})
	}
	_, err = fmt.Fprintf(w,
		"Admin token: %s\n\nAdd to the environment:\nADMIN_TOKEN_HASH='%s'\n\n"+
			"The token cannot be recovered from the hash. Store it now.\n",
		plainToken, tokenHash)
	return err
}
