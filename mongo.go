package colstore

import (
	"context"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// Ensure mongoStore implements CellStore.
var _ CellStore = (*mongoStore)(nil)

const (
	mongoCodeNamespaceNotFound = 26
	mongoCodeNamespaceExists   = 48
)

// mongoStore keeps one collection per table and one document per row. The
// document id is the hex row key, which sorts like the raw bytes.
type mongoStore struct {
	db *mongo.Database
}

type mongoCell struct {
	Family    string `bson:"family"`
	Qualifier string `bson:"qualifier"`
	Ts        int64  `bson:"ts"`
	Value     []byte `bson:"value"`
}

type mongoRow struct {
	ID    string      `bson:"_id"`
	Cells []mongoCell `bson:"cells"`
}

func (r mongoRow) toRow(opt *readOption) (Row, error) {
	key, err := hex.DecodeString(r.ID)
	if err != nil {
		return Row{}, errors.Wrapf(err, "invalid row id %q", r.ID)
	}

	row := Row{Key: key}
	for _, c := range r.Cells {
		if !opt.matches(c.Family, c.Qualifier) {
			continue
		}
		row.Cells = append(row.Cells, Cell{
			Row:       key,
			Family:    c.Family,
			Qualifier: c.Qualifier,
			Value:     c.Value,
			Timestamp: c.Ts,
		})
	}

	sortCells(row.Cells)
	return row, nil
}

func NewMongoStore(db *mongo.Database) CellStore {
	return &mongoStore{db: db}
}

func wrapMongoError(err error, table string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrap(ErrRowNotFound, err.Error())
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case mongoCodeNamespaceNotFound:
			return errors.Wrap(ErrTableNotFound, table)
		case mongoCodeNamespaceExists:
			return errors.Wrap(ErrTableExists, table)
		}
	}

	return err
}

// collection returns the collection of table. Collections spring into
// existence on first write, so a missing table is checked for explicitly.
func (m *mongoStore) collection(ctx context.Context, table string) (*mongo.Collection, error) {
	ok, err := m.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(ErrTableNotFound, table)
	}

	return m.db.Collection(table), nil
}

func (m *mongoStore) CreateTable(ctx context.Context, table string) error {
	return wrapMongoError(m.db.CreateCollection(ctx, table), table)
}

func (m *mongoStore) DropTable(ctx context.Context, table string) error {
	coll, err := m.collection(ctx, table)
	if err != nil {
		return err
	}

	return wrapMongoError(coll.Drop(ctx), table)
}

func (m *mongoStore) TableExists(ctx context.Context, table string) (bool, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: table}})
	if err != nil {
		return false, wrapMongoError(err, table)
	}

	return len(names) > 0, nil
}

func (m *mongoStore) ListTables(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrapMongoError(err, "")
	}

	sort.Strings(names)
	return names, nil
}

// Flush is a no-op: acknowledged writes are already journaled.
func (m *mongoStore) Flush(_ context.Context) error {
	return nil
}

// Put pulls the previous version of every written column and pushes the new
// one, in an ordered bulk write.
func (m *mongoStore) Put(ctx context.Context, table string, mutations ...Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}

	coll, err := m.collection(ctx, table)
	if err != nil {
		return err
	}

	var models []mongo.WriteModel
	for _, mu := range mutations {
		if len(mu.Columns) == 0 {
			continue
		}

		ts := mutationTimestamp(mu)
		id := hex.EncodeToString(mu.Row)

		var (
			stale []bson.M
			cells []mongoCell
		)
		for _, c := range mu.Columns {
			stale = append(stale, bson.M{"family": c.Family, "qualifier": c.Qualifier})
			cells = append(cells, mongoCell{Family: c.Family, Qualifier: c.Qualifier, Ts: ts, Value: c.Value})
		}

		models = append(models,
			mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": id}).
				SetUpdate(bson.M{"$pull": bson.M{"cells": bson.M{"$or": stale}}}),
			mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": id}).
				SetUpdate(bson.M{"$push": bson.M{"cells": bson.M{"$each": cells}}}).
				SetUpsert(true),
		)
	}

	if len(models) == 0 {
		return nil
	}

	_, err = coll.BulkWrite(ctx, models, mongoOptions.BulkWrite().SetOrdered(true))
	return wrapMongoError(err, table)
}

func (m *mongoStore) Get(ctx context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	coll, err := m.collection(ctx, table)
	if err != nil {
		return nil, err
	}

	var doc mongoRow
	err = coll.FindOne(ctx, bson.M{"_id": hex.EncodeToString(row)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongoError(err, table)
	}

	r, err := doc.toRow(newReadOption(options))
	if err != nil {
		return nil, err
	}

	return r.Cells, nil
}

func (m *mongoStore) Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error) {
	coll, err := m.collection(ctx, table)
	if err != nil {
		return nil, err
	}

	opt := newReadOption(options)
	filter := bson.M{}

	idRange := bson.M{}
	if opt.StartRow != nil {
		idRange["$gte"] = hex.EncodeToString(opt.StartRow)
	}
	if opt.StopRow != nil {
		idRange["$lt"] = hex.EncodeToString(opt.StopRow)
	}
	if len(idRange) > 0 {
		filter["_id"] = idRange
	}

	if opt.Family != "" {
		match := bson.M{"family": opt.Family}
		if opt.Qualifier != "" {
			match["qualifier"] = opt.Qualifier
		}
		filter["cells"] = bson.M{"$elemMatch": match}
	}

	findOpts := mongoOptions.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opt.Limit > 0 {
		findOpts.SetLimit(int64(opt.Limit))
	}

	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, wrapMongoError(err, table)
	}
	defer cur.Close(ctx)

	var docs []mongoRow
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapMongoError(err, table)
	}

	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		r, err := doc.toRow(opt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}

	return Filter(rows, func(r Row) bool { return len(r.Cells) > 0 }), nil
}

func (m *mongoStore) Delete(ctx context.Context, table string, row []byte, options ...ReadOption) error {
	coll, err := m.collection(ctx, table)
	if err != nil {
		return err
	}

	id := hex.EncodeToString(row)
	opt := newReadOption(options)
	if opt.Family == "" {
		_, err := coll.DeleteOne(ctx, bson.M{"_id": id})
		return wrapMongoError(err, table)
	}

	match := bson.M{"family": opt.Family}
	if opt.Qualifier != "" {
		match["qualifier"] = opt.Qualifier
	}

	if _, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"cells": match}}); err != nil {
		return wrapMongoError(err, table)
	}

	_, err = coll.DeleteOne(ctx, bson.M{"_id": id, "cells": bson.M{"$size": 0}})
	return wrapMongoError(err, table)
}

func (m *mongoStore) Exists(ctx context.Context, table string, row []byte) (bool, error) {
	coll, err := m.collection(ctx, table)
	if err != nil {
		return false, err
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": hex.EncodeToString(row)}, mongoOptions.Count().SetLimit(1))
	if err != nil {
		return false, wrapMongoError(err, table)
	}

	return n > 0, nil
}

func (m *mongoStore) Close() error {
	if err := m.db.Client().Disconnect(context.Background()); err != nil {
		return errors.Wrap(err, "failed to disconnect mongodb client")
	}

	log.WithField("database", m.db.Name()).Debug("mongodb client disconnected")
	return nil
}
