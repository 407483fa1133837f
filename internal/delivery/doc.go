// Package delivery uploads a recording that is too large for one message as
// a series of stream-copied parts, re-splitting with shorter parts until every
// part fits the transport's size budget.
package delivery
