package mongo

import (
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
)

func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongodrv.ErrClientDisconnected) {
		return txn.Unavailable(err)
	}
	if mongodrv.IsNetworkError(err) {
		return txn.Transient(txn.Unavailable(err))
	}

	// an unknown commit result may already be applied, so it never reaches
	// the unit of work retry
	if hasLabel(err, labelTransientTransaction) {
		return txn.Transient(err)
	}

	return err
}

func hasLabel(err error, label string) bool {
	var se mongodrv.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(label)
}
