package servicemocker

// Version is the servicemocker release.
const Version = "0.1.0"
