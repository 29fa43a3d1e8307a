// Package testing provides the conformance suite every docstore.IDocStore
// implementation runs, local and remote alike.
//
// Example usage:
//
//	factory := func(t *testing.T) docstore.IDocStore {
//		s, err := docstore.NewLocalDocStore(maple.NewMapleDB(nil), continuous.DefaultOptions())
//		if err != nil {
//			t.Fatal(err)
//		}
//		return s
//	}
//	dstesting.RunDocStoreTests(t, "Local", factory)
package testing
