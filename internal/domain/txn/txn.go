// Package txn abstracts store transactions for domain services.
package txn

import "context"

// Transactor runs fn inside a single store transaction. The transaction is
// carried by the context handed to fn; repository calls made with that context
// join it. Returning an error from fn aborts the transaction and none of its
// writes become visible. Calling InTx with a context that already carries a
// transaction of the same store joins the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
