/*
Package message implements the one-shot request/response protocol used for
all client and worker communication.

Every exchange creates a fresh pair of entangled ports, transfers one half
with the outgoing message and waits for a single reply on the other:

	reply, err := message.Send(ctx, worker, domain.Envelope{Action: domain.ActionConnect})

Send gives up after DefaultTimeout (see WithTimeout) and always releases
both ports, so a late reply is dropped instead of settling the exchange a
second time. A reply carrying an error marker is returned as a *ReplyError.

Bus is the same-context delivery primitive, and Pipe connects two
in-process links. Transports that cross a process boundary live in
pkg/adapters/ws.
*/
package message
