// Command hub runs the arena ranking service: the HTTP API and the scheduled
// report delivery.
package main

import (
	"go.uber.org/fx"

	"github.com/jianghu-hub/arena-hub/internal/app"
)

func main() {
	fx.New(
		app.Module,
		app.WithLogger(),
	).Run()
}
