package ledger

import "errors"

var ErrBalanceDrift = errors.New("wallet balance does not match transaction sum")
