package paymentlink

import (
	"github.com/smallbiznis/dongi/internal/paymentlink/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentlink.repository",
	fx.Provide(repository.Provide),
)
