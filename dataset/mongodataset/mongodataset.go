/*
Package mongodataset provides a dataset.Source that keeps rows
on a MongoDB database, one document per row.
*/
package mongodataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/feature"
	mgo "gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	samplesCollectionName = "samples"
)

/*
Dataset is a set of rows on a MongoDB collection that rows can
be written to and sequentially read from
*/
type Dataset struct {
	session  *mgo.Session
	features []feature.Feature
	filter   bson.M
}

var _ dataset.Source = (*Dataset)(nil)

/*
Open takes a MongoDB database session and the features of the rows and
returns a Dataset that works on the default database for that session,
or an error if it fails to index the feature fields.
*/
func Open(ctx context.Context, session *mgo.Session, features []feature.Feature) (*Dataset, error) {
	mds := &Dataset{session: session, features: features}
	err := mds.ensureIndexes()
	if err != nil {
		return nil, err
	}
	return mds, nil
}

// Where returns a Dataset over the documents of mds matching the
// given MongoDB query as well
func (mds *Dataset) Where(query bson.M) *Dataset {
	filter := make(bson.M, len(mds.filter)+len(query))
	for k, v := range mds.filter {
		filter[k] = v
	}
	for k, v := range query {
		filter[k] = v
	}
	return &Dataset{session: mds.session, features: mds.features, filter: filter}
}

// Count returns the number of rows of the dataset
func (mds *Dataset) Count(context.Context) (int, error) {
	return mds.query().Count()
}

/*
Write takes rows of raw values, one per feature of the dataset and in
the same order, and inserts a document per row. Undefined values are
left out of the documents. It returns the number of rows written.
*/
func (mds *Dataset) Write(ctx context.Context, rows [][]interface{}) (int, error) {
	docs := make([]interface{}, 0, len(rows))
	for i, r := range rows {
		if len(r) != len(mds.features) {
			return 0, fmt.Errorf("writing row %d: expected %d values, got %d", i, len(mds.features), len(r))
		}
		doc := make(bson.M)
		for j, f := range mds.features {
			if r[j] == nil {
				continue
			}
			if _, err := f.Encode(r[j]); err != nil {
				return 0, fmt.Errorf("writing row %d: %v", i, err)
			}
			doc[f.Name()] = r[j]
		}
		docs = append(docs, doc)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err := mds.samplesCollection().Insert(docs...)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Read returns a channel with the rows of the dataset in insertion
// order and a channel yielding the error that stopped reading if any
func (mds *Dataset) Read(ctx context.Context) (<-chan []interface{}, <-chan error) {
	rows := make(chan []interface{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(rows)
		var doc bson.M
		iter := mds.query().Sort("_id").Iter()
		defer iter.Close()
		for iter.Next(&doc) {
			row := make([]interface{}, len(mds.features))
			for i, f := range mds.features {
				row[i] = doc[f.Name()]
			}
			doc = nil
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case rows <- row:
			}
		}
		if err := iter.Err(); err != nil {
			errs <- err
		}
	}()
	return rows, errs
}

// Close closes the session of the dataset
func (mds *Dataset) Close() {
	mds.session.Close()
}

func (mds *Dataset) ensureIndexes() error {
	for _, f := range mds.features {
		fName := f.Name()
		if fName == "_id" {
			return fmt.Errorf("invalid feature name %q: reserved collection field", "_id")
		}
		if strings.ContainsAny(fName, ".$") {
			return fmt.Errorf("invalid feature name %q: contains reserved characters %q or %q", fName, ".", "$")
		}
		index := mgo.Index{
			Key:        []string{fName},
			Background: true,
			Sparse:     true,
		}
		err := mds.samplesCollection().EnsureIndex(index)
		if err != nil {
			return err
		}
	}
	return nil
}

func (mds *Dataset) samplesCollection() *mgo.Collection {
	return mds.session.DB("").C(samplesCollectionName)
}

func (mds *Dataset) query() *mgo.Query {
	return mds.samplesCollection().Find(mds.filter)
}
