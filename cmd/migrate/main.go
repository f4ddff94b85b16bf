package migrate

import (
	"context"
	"errors"
	"os"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/migrate"
	"kitchen-display/pkg/logger"
)

func Main() {
	mylog := logger.NewLogger("migrate", "info")

	if err := migrate.Execute(context.Background(), mylog, os.Args[1:]); err != nil {
		if errors.Is(err, core.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
