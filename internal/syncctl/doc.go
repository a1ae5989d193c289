// Package syncctl keeps one consumer's views in step with the request feed.
//
// A Controller holds an active subscription, a settings subscription, and an
// optional history subscription. Each snapshot replaces the matching raw set
// wholesale and the views are re-projected from scratch on the controller's
// single event loop.
package syncctl
