// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides a loopback oidc.WebAuthSession: it opens
the system browser at the authorization URL and receives the provider's
redirect on a one-time local http listener bound to the redirect URL.
*/
package callback
