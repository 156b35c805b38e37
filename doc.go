// Package followerwatch watches the follower count of a single social media
// account and sends a message when the count grows, when it reaches a target,
// and when it passes one of a set of milestones.
//
// The moving parts are small. A CountSource says how many followers the
// account has right now, a StateStore remembers what the count was last time,
// Evaluate decides which messages that difference is worth, and a Notifier
// delivers them. A Watcher runs that cycle on a schedule.
//
// Where the count comes from and where the messages go are the only parts
// that change between deployments, so those live in the source and notify
// packages behind the two interfaces defined here.
package followerwatch
