// Package model defines the persisted entities of the approval gate:
// pending actions, standing approval rules and the append-only approval
// events that describe every transition between them.
//
// The types are storage agnostic; the dao sub-packages map them onto
// concrete stores.
package model
