/*
Package rewrite substitutes modern-format derivative URLs into document
markup and drives the publish flow.

Markup is parsed into an x/net/html node tree in a <body> context and three
shapes are handled:

  - <video>: the src attribute is dropped and the <source> children are
    rebuilt, one per available derivative in preference order, followed by
    the original unless originals are being deleted.
  - <picture>: the <source srcset type> list is rebuilt; the fallback <img>
    keeps the original, or points at the best derivative when originals are
    being deleted.
  - a standalone <img>: src (and mapping srcset entries) is replaced by the
    best derivative URL.

<audio> subtrees are left alone. When nothing changes the input is returned
byte for byte.

A PathResolver maps URLs under the public base URL to files under the
media root and reports which derivatives are on disk. The delivery package
shares it so publish-time and request-time choices agree.
*/
package rewrite
