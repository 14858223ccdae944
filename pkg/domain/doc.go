/*
Package domain contains the wire and value types shared by the client, the
worker runtime and the storage service.

It is kept free of I/O so both sides of a link can depend on it.

# Key Entities

  - Action: the tag carried by every message on the wire (GET_STORAGE, CONNECT, ...).
  - Envelope: the single message shape used for requests and replies.
  - RegistrationInfo: what a worker reports about a registration it accepted.
  - RegisterOptions: options passed along with a registration request.
*/
package domain
