package client

import (
	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/serializer"
	"github.com/ValentinKolb/cKV/rpc/transport"
)

// NewRPCDocStore creates a new RPC document store
// The function takes a shard ID, a client config, a transport and a serializer as parameters
// It returns a docstore.IDocStore and an error
func NewRPCDocStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (docstore.IDocStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC document store
	s := rpcDocStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC document store
	return &s, nil
}

type rpcDocStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore/interface.go)
// --------------------------------------------------------------------------

func (s *rpcDocStore) Begin() (docstore.TxID, error) {
	resp, err := s.invoke(common.NewBeginRequest())
	if err != nil {
		return "", err
	}
	return docstore.TxID(resp.TxID), nil
}

func (s *rpcDocStore) Put(tx docstore.TxID, doc docstore.Doc) (docstore.Doc, error) {
	resp, err := s.invoke(common.NewPutRequest(tx, doc))
	if err != nil {
		return docstore.Doc{}, err
	}
	if resp.Doc == nil {
		return docstore.Doc{}, continuous.NewError(continuous.ErrCFatal, "put response without document")
	}
	return *resp.Doc, nil
}

func (s *rpcDocStore) Get(tx docstore.TxID, key string) (docstore.Doc, bool, error) {
	resp, err := s.invoke(common.NewGetRequest(tx, key))
	if err != nil || !resp.Ok || resp.Doc == nil {
		return docstore.Doc{}, false, err
	}
	return *resp.Doc, true, nil
}

func (s *rpcDocStore) Delete(tx docstore.TxID, key string) (bool, error) {
	resp, err := s.invoke(common.NewDeleteRequest(tx, key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (s *rpcDocStore) Range(tx docstore.TxID, from, till string) ([]docstore.Doc, error) {
	return s.docs(common.NewRangeRequest(tx, from, till))
}

func (s *rpcDocStore) Tagged(tx docstore.TxID, tag string) ([]docstore.Doc, error) {
	return s.docs(common.NewTaggedRequest(tx, tag))
}

func (s *rpcDocStore) Search(tx docstore.TxID, query string, limit int) ([]docstore.Doc, error) {
	return s.docs(common.NewSearchRequest(tx, query, limit))
}

func (s *rpcDocStore) History(key string) ([]docstore.Doc, error) {
	return s.docs(common.NewHistoryRequest(key))
}

func (s *rpcDocStore) Commit(tx docstore.TxID) error {
	_, err := s.invoke(common.NewCommitRequest(tx))
	return err
}

func (s *rpcDocStore) Rollback(tx docstore.TxID) error {
	_, err := s.invoke(common.NewRollbackRequest(tx))
	return err
}

func (s *rpcDocStore) Info() (continuous.Info, error) {
	resp, err := s.invoke(common.NewInfoRequest())
	if err != nil {
		return continuous.Info{}, err
	}
	return resp.DecodeInfo()
}

// Close closes the transport, transactions on the server stay open until
// they are committed or rolled back.
func (s *rpcDocStore) Close() error {
	return s.transport.Close()
}

func (s *rpcDocStore) docs(req *common.Message) ([]docstore.Doc, error) {
	resp, err := s.invoke(req)
	if err != nil {
		return nil, err
	}
	return resp.Docs, nil
}
