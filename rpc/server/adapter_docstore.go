package server

import (
	"fmt"

	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/common"
)

func NewDocStoreServerAdapter() IRPCServerAdapter {
	return &docStoreServerAdapterImpl{}
}

type docStoreServerAdapterImpl struct{}

func (adapter *docStoreServerAdapterImpl) Handle(req *common.Message, store docstore.IDocStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	tx := docstore.TxID(req.TxID)

	// Handle different message types
	switch req.MsgType {
	case common.MsgTDocBegin:
		id, err := store.Begin()
		return common.NewBeginResponse(id, err)
	case common.MsgTDocPut:
		if req.Doc == nil {
			return common.NewErrorResponse("RPC DocStoreAdapter - put without document")
		}
		doc, err := store.Put(tx, *req.Doc)
		return common.NewPutResponse(doc, err)
	case common.MsgTDocGet:
		doc, ok, err := store.Get(tx, req.Key)
		return common.NewGetResponse(doc, ok, err)
	case common.MsgTDocDelete:
		ok, err := store.Delete(tx, req.Key)
		return common.NewDeleteResponse(ok, err)
	case common.MsgTDocRange:
		docs, err := store.Range(tx, req.From, req.Till)
		return common.NewDocsResponse(req.MsgType, docs, err)
	case common.MsgTDocTagged:
		docs, err := store.Tagged(tx, req.Query)
		return common.NewDocsResponse(req.MsgType, docs, err)
	case common.MsgTDocSearch:
		docs, err := store.Search(tx, req.Query, req.Limit)
		return common.NewDocsResponse(req.MsgType, docs, err)
	case common.MsgTDocHistory:
		docs, err := store.History(req.Key)
		return common.NewDocsResponse(req.MsgType, docs, err)
	case common.MsgTDocCommit:
		return common.NewEndResponse(req.MsgType, store.Commit(tx))
	case common.MsgTDocRollback:
		return common.NewEndResponse(req.MsgType, store.Rollback(tx))
	case common.MsgTDocInfo:
		info, err := store.Info()
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC DocStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
