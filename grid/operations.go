package grid

// OperationType names a mutating dialect call.
type OperationType int

const (
	OpCreateTuple OperationType = iota
	OpCreateTupleWithTable
	OpInsertTuple
	OpInsertOrUpdateTuple
	OpRemoveTuple
	OpUpdateTupleWithOptimisticLock
	OpRemoveTupleWithOptimisticLock
	OpCreateAssociation
	OpInsertOrUpdateAssociation
	OpRemoveAssociation
	OpExecuteBatch
)

var operationNames = [...]string{
	OpCreateTuple:                   "create_tuple",
	OpCreateTupleWithTable:          "create_tuple_with_table",
	OpInsertTuple:                   "insert_tuple",
	OpInsertOrUpdateTuple:           "insert_or_update_tuple",
	OpRemoveTuple:                   "remove_tuple",
	OpUpdateTupleWithOptimisticLock: "update_tuple_with_optimistic_lock",
	OpRemoveTupleWithOptimisticLock: "remove_tuple_with_optimistic_lock",
	OpCreateAssociation:             "create_association",
	OpInsertOrUpdateAssociation:     "insert_or_update_association",
	OpRemoveAssociation:             "remove_association",
	OpExecuteBatch:                  "execute_batch",
}

func (t OperationType) String() string {
	if t >= 0 && int(t) < len(operationNames) {
		return operationNames[t]
	}
	return "unknown"
}

// Operation describes one mutating dialect call. Values queued in an
// OperationsQueue and values handed to an ErrorHandler share these types.
type Operation interface {
	Type() OperationType
}

type CreateTupleOp struct {
	Key EntityKey
}

type CreateTupleWithTableOp struct {
	Metadata *EntityKeyMetadata
}

// InsertTupleOp records an insert keyed by a generated identity; Key is the
// key the dialect assigned.
type InsertTupleOp struct {
	Metadata *EntityKeyMetadata
	Key      EntityKey
	Tuple    *Tuple
}

type InsertOrUpdateTupleOp struct {
	Key   EntityKey
	Tuple *Tuple
}

type RemoveTupleOp struct {
	Key EntityKey
}

type UpdateTupleWithOptimisticLockOp struct {
	Key          EntityKey
	OldLockState *Tuple
	Tuple        *Tuple
}

type RemoveTupleWithOptimisticLockOp struct {
	Key          EntityKey
	OldLockState *Tuple
}

type CreateAssociationOp struct {
	Key AssociationKey
}

type InsertOrUpdateAssociationOp struct {
	Key         AssociationKey
	Association *Association
}

type RemoveAssociationOp struct {
	Key AssociationKey
}

// ExecuteBatchOp records a whole batch that was applied.
type ExecuteBatchOp struct {
	Operations []Operation
}

func (CreateTupleOp) Type() OperationType                   { return OpCreateTuple }
func (CreateTupleWithTableOp) Type() OperationType          { return OpCreateTupleWithTable }
func (InsertTupleOp) Type() OperationType                   { return OpInsertTuple }
func (InsertOrUpdateTupleOp) Type() OperationType           { return OpInsertOrUpdateTuple }
func (RemoveTupleOp) Type() OperationType                   { return OpRemoveTuple }
func (UpdateTupleWithOptimisticLockOp) Type() OperationType { return OpUpdateTupleWithOptimisticLock }
func (RemoveTupleWithOptimisticLockOp) Type() OperationType { return OpRemoveTupleWithOptimisticLock }
func (CreateAssociationOp) Type() OperationType             { return OpCreateAssociation }
func (InsertOrUpdateAssociationOp) Type() OperationType     { return OpInsertOrUpdateAssociation }
func (RemoveAssociationOp) Type() OperationType             { return OpRemoveAssociation }
func (ExecuteBatchOp) Type() OperationType                  { return OpExecuteBatch }
